package manifests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

func TestRenderSubscription(t *testing.T) {
	obj, err := RenderSubscription(Subscription{
		Name:            "rhacs-operator",
		Namespace:       "rhacs-operator",
		Package:         "rhacs-operator",
		Channel:         "stable",
		Source:          "redhat-operators",
		SourceNamespace: "openshift-marketplace",
	})
	require.NoError(t, err)

	assert.Equal(t, "Subscription", obj.GetKind())
	assert.Equal(t, "rhacs-operator", obj.GetNamespace())

	approval, _, _ := unstructured.NestedString(obj.Object, "spec", "installPlanApproval")
	assert.Equal(t, "Automatic", approval)
	_, found, _ := unstructured.NestedString(obj.Object, "spec", "startingCSV")
	assert.False(t, found)
}

func TestRenderOperatorGroup(t *testing.T) {
	all, err := RenderOperatorGroup(OperatorGroup{Name: "rhacs-operator-group", Namespace: "rhacs-operator"})
	require.NoError(t, err)
	spec, found, _ := unstructured.NestedMap(all.Object, "spec")
	require.True(t, found)
	assert.Empty(t, spec)

	own, err := RenderOperatorGroup(OperatorGroup{Name: "og", Namespace: "openshift-compliance", TargetNamespaces: []string{"openshift-compliance"}})
	require.NoError(t, err)
	targets, _, _ := unstructured.NestedStringSlice(own.Object, "spec", "targetNamespaces")
	assert.Equal(t, []string{"openshift-compliance"}, targets)
}

func TestRenderCentral(t *testing.T) {
	obj, err := RenderCentral(Central{Name: "stackrox-central-services", Namespace: "stackrox"})
	require.NoError(t, err)

	enabled, _, _ := unstructured.NestedBool(obj.Object, "spec", "central", "exposure", "route", "enabled")
	assert.True(t, enabled)
	_, found, _ := unstructured.NestedMap(obj.Object, "spec", "central", "defaultTLSSecret")
	assert.False(t, found)

	obj, err = RenderCentral(Central{Name: "stackrox-central-services", Namespace: "stackrox", TLSSecret: "central-tls"})
	require.NoError(t, err)
	name, _, _ := unstructured.NestedString(obj.Object, "spec", "central", "defaultTLSSecret", "name")
	assert.Equal(t, "central-tls", name)
}

func TestRenderSecuredClusterQuotesValues(t *testing.T) {
	obj, err := RenderSecuredCluster(SecuredCluster{
		Name:            "stackrox-secured-cluster-services",
		Namespace:       "stackrox",
		ClusterName:     "yes",
		CentralEndpoint: "central.stackrox.svc:443",
	})
	require.NoError(t, err)

	name, found, err := unstructured.NestedString(obj.Object, "spec", "clusterName")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "yes", name)

	endpoint, _, _ := unstructured.NestedString(obj.Object, "spec", "centralEndpoint")
	assert.Equal(t, "central.stackrox.svc:443", endpoint)
}

func TestRenderServiceMonitor(t *testing.T) {
	obj, err := RenderServiceMonitor(ServiceMonitor{
		Name: "central", Namespace: "stackrox", TokenSecret: "central-metrics-token", TokenKey: "token",
	})
	require.NoError(t, err)

	endpoints, _, _ := unstructured.NestedSlice(obj.Object, "spec", "endpoints")
	require.Len(t, endpoints, 1)
	ep := endpoints[0].(map[string]interface{})
	assert.Equal(t, "30s", ep["interval"])
	assert.Equal(t, "/metrics", ep["path"])
}

func TestDecodeAll(t *testing.T) {
	data := []byte(`# init bundle
---
apiVersion: v1
kind: Secret
metadata:
  name: sensor-tls
---
---
apiVersion: v1
kind: Secret
metadata:
  name: collector-tls
`)
	objs, err := DecodeAll(data)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "sensor-tls", objs[0].GetName())
	assert.Equal(t, "collector-tls", objs[1].GetName())
}
