package rhacs

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	configv1 "github.com/openshift/api/config/v1"
	routev1 "github.com/openshift/api/route/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/kube/kubetest"
	"github.com/ayaseen/rhacs-runner/pkg/log"
)

const ns = "stackrox"

func testManager(objs kubetest.Objects) (*Manager, *kube.Clients) {
	c, _ := kubetest.NewClients(objs)
	w := &kube.Waiter{Interval: time.Millisecond, Timeout: 100 * time.Millisecond}
	return NewManager(c, w, log.Discard(), ns), c
}

func centralCR(conditions ...interface{}) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "platform.stackrox.io/v1alpha1",
		"kind":       "Central",
		"metadata":   map[string]interface{}{"name": CentralName, "namespace": ns},
		"spec":       map[string]interface{}{},
		"status":     map[string]interface{}{"conditions": conditions},
	}}
}

func condition(typ, status, message string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "status": status, "message": message}
}

func TestEnsureCentralIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, c := testManager(kubetest.Objects{})

	res, err := m.EnsureCentral(ctx)
	require.NoError(t, err)
	assert.Equal(t, kube.ResultCreated, res)

	res, err = m.EnsureCentral(ctx)
	require.NoError(t, err)
	assert.Equal(t, kube.ResultUnchanged, res)

	_, err = c.Dynamic.Resource(kube.CentralGVR).Namespace(ns).Get(ctx, CentralName, metav1.GetOptions{})
	require.NoError(t, err)
}

func TestWaitForCentralReleaseFailed(t *testing.T) {
	m, _ := testManager(kubetest.Objects{Dynamic: []runtime.Object{
		centralCR(condition("Deployed", "False", ""), condition("ReleaseFailed", "True", "chart render failed")),
	}})

	err := m.WaitForCentral(context.Background())
	require.Error(t, err)
	assert.False(t, kube.IsTimeout(err))
	assert.Contains(t, err.Error(), "chart render failed")
}

func TestWaitForCentralNeedsDeployment(t *testing.T) {
	m, _ := testManager(kubetest.Objects{Dynamic: []runtime.Object{
		centralCR(condition("Deployed", "True", "")),
	}})

	err := m.WaitForCentral(context.Background())
	require.Error(t, err)
	assert.True(t, kube.IsTimeout(err))
	assert.Contains(t, err.Error(), "deployment stackrox/central")
}

func TestCentralEndpoint(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(kubetest.Objects{Route: []runtime.Object{
		&routev1.Route{
			ObjectMeta: metav1.ObjectMeta{Name: CentralRoute, Namespace: ns},
			Spec:       routev1.RouteSpec{Host: "central-stackrox.apps.example.com"},
		},
	}})

	endpoint, err := m.CentralEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "central-stackrox.apps.example.com:443", endpoint)

	host, err := m.CentralHost(ctx)
	require.NoError(t, err)
	assert.Equal(t, "central-stackrox.apps.example.com", host)
}

func TestCentralEndpointMissingRoute(t *testing.T) {
	m, _ := testManager(kubetest.Objects{})
	_, err := m.CentralEndpoint(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "central install")
}

func TestAdminPassword(t *testing.T) {
	m, _ := testManager(kubetest.Objects{Kube: []runtime.Object{
		&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: AdminSecret, Namespace: ns},
			Data:       map[string][]byte{AdminPasswordKey: []byte("hunter2\n")},
		},
	}})

	password, err := m.AdminPassword(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)
}

func TestPatchCentralTLS(t *testing.T) {
	ctx := context.Background()
	m, c := testManager(kubetest.Objects{Dynamic: []runtime.Object{centralCR()}})

	changed, err := m.PatchCentralTLS(ctx, "central-default-tls")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = m.PatchCentralTLS(ctx, "central-default-tls")
	require.NoError(t, err)
	assert.False(t, changed)

	obj, err := c.Dynamic.Resource(kube.CentralGVR).Namespace(ns).Get(ctx, CentralName, metav1.GetOptions{})
	require.NoError(t, err)
	name, _, _ := unstructured.NestedString(obj.Object, "spec", "central", "defaultTLSSecret", "name")
	assert.Equal(t, "central-default-tls", name)
}

func TestClusterName(t *testing.T) {
	ctx := context.Background()

	m, _ := testManager(kubetest.Objects{})
	assert.Equal(t, DefaultClusterName, m.ClusterName(ctx))

	m, _ = testManager(kubetest.Objects{Config: []runtime.Object{
		&configv1.Infrastructure{
			ObjectMeta: metav1.ObjectMeta{Name: "cluster"},
			Status:     configv1.InfrastructureStatus{InfrastructureName: "prod-x7k2p"},
		},
	}})
	assert.Equal(t, "prod-x7k2p", m.ClusterName(ctx))
}

type fakeBundles struct {
	names  []string
	exists map[string]bool

	// unavailable fails this many calls with 503 first
	unavailable int
}

func (f *fakeBundles) GenerateInitBundle(_ context.Context, name string) (*central.InitBundle, error) {
	f.names = append(f.names, name)
	if f.unavailable > 0 {
		f.unavailable--
		return nil, &central.APIError{Method: "POST", Path: "/v1/cluster-init/init-bundles", StatusCode: 503, Body: "upstream connect error"}
	}
	if f.exists[name] {
		return nil, central.ErrAlreadyExists
	}
	return &central.InitBundle{Name: name, KubectlBundle: []byte(bundleYAML)}, nil
}

const bundleYAML = `apiVersion: v1
kind: Secret
metadata:
  name: sensor-tls
  namespace: stackrox
stringData:
  ca.pem: CA
---
apiVersion: v1
kind: Secret
metadata:
  name: collector-tls
data:
  ca.pem: Q0E=
---
apiVersion: v1
kind: Secret
metadata:
  name: admission-control-tls
data:
  ca.pem: Q0E=
`

func TestEnsureInitBundle(t *testing.T) {
	ctx := context.Background()
	m, c := testManager(kubetest.Objects{})
	api := &fakeBundles{}

	applied, err := m.EnsureInitBundle(ctx, api, "local-cluster")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{"local-cluster-init-bundle"}, api.names)

	v, err := c.SecretValue(ctx, ns, "sensor-tls", "ca.pem")
	require.NoError(t, err)
	assert.Equal(t, "CA", v)

	applied, err = m.EnsureInitBundle(ctx, api, "local-cluster")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, api.names, 1)
}

func TestEnsureInitBundleRenamesWhenBundleExists(t *testing.T) {
	m, _ := testManager(kubetest.Objects{})
	api := &fakeBundles{exists: map[string]bool{"local-cluster-init-bundle": true}}

	applied, err := m.EnsureInitBundle(context.Background(), api, "local-cluster")
	require.NoError(t, err)
	assert.True(t, applied)
	require.Len(t, api.names, 2)
	assert.Contains(t, api.names[1], "local-cluster-init-bundle-")
}

func TestEnsureInitBundleRetriesWhileCentralRestarts(t *testing.T) {
	m, _ := testManager(kubetest.Objects{})
	api := &fakeBundles{unavailable: 2}

	applied, err := m.EnsureInitBundle(context.Background(), api, "local-cluster")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{"local-cluster-init-bundle", "local-cluster-init-bundle", "local-cluster-init-bundle"}, api.names)

	m, _ = testManager(kubetest.Objects{})
	api = &fakeBundles{unavailable: TokenAttempts}
	_, err = m.EnsureInitBundle(context.Background(), api, "local-cluster")
	require.Error(t, err)
	assert.ErrorContains(t, err, "HTTP 503")
	assert.Len(t, api.names, TokenAttempts)
}

type fakePinger struct {
	failures int
	calls    int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	}
	return nil
}

func TestWaitForCentralAPI(t *testing.T) {
	m, _ := testManager(kubetest.Objects{})

	api := &fakePinger{failures: 3}
	require.NoError(t, m.WaitForCentralAPI(context.Background(), api))
	assert.Equal(t, 4, api.calls)

	err := m.WaitForCentralAPI(context.Background(), &fakePinger{failures: 1 << 20})
	require.Error(t, err)
	assert.True(t, kube.IsTimeout(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEnsureSecuredCluster(t *testing.T) {
	ctx := context.Background()
	m, c := testManager(kubetest.Objects{})

	res, err := m.EnsureSecuredCluster(ctx, "local-cluster")
	require.NoError(t, err)
	assert.Equal(t, kube.ResultCreated, res)

	obj, err := c.Dynamic.Resource(kube.SecuredClusterGVR).Namespace(ns).Get(ctx, SecuredClusterName, metav1.GetOptions{})
	require.NoError(t, err)
	endpoint, _, _ := unstructured.NestedString(obj.Object, "spec", "centralEndpoint")
	assert.Equal(t, "central.stackrox.svc:443", endpoint)
}

type fakeClusters struct {
	health string
	err    error
}

func (f *fakeClusters) ClusterByName(_ context.Context, name string) (*central.Cluster, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &central.Cluster{ID: "c1", Name: name, HealthStatus: central.ClusterHealthStatus{OverallHealthStatus: f.health}}, nil
}

func TestWaitForClusterHealthy(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(kubetest.Objects{})

	cluster, err := m.WaitForClusterHealthy(ctx, &fakeClusters{health: central.HealthHealthy}, "local-cluster")
	require.NoError(t, err)
	assert.Equal(t, "c1", cluster.ID)

	// degraded is tolerated
	cluster, err = m.WaitForClusterHealthy(ctx, &fakeClusters{health: central.HealthDegraded}, "local-cluster")
	require.NoError(t, err)
	assert.Equal(t, central.HealthDegraded, cluster.HealthStatus.OverallHealthStatus)

	_, err = m.WaitForClusterHealthy(ctx, &fakeClusters{health: central.HealthUnhealthy}, "local-cluster")
	require.Error(t, err)
	assert.Contains(t, err.Error(), central.HealthUnhealthy)

	_, err = m.WaitForClusterHealthy(ctx, &fakeClusters{err: &central.ClusterNotFoundError{Name: "x"}}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

type fakeTokens struct {
	calls int
	errs  []error
}

func (f *fakeTokens) GenerateToken(_ context.Context, _ string, roles []string) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return "token-" + roles[0], nil
}

func TestGenerateAPITokenRetries(t *testing.T) {
	api := &fakeTokens{errs: []error{
		&central.APIError{StatusCode: http.StatusServiceUnavailable},
		&central.APIError{StatusCode: http.StatusBadGateway},
	}}

	token, err := GenerateAPIToken(context.Background(), api, log.Discard(), "rhacs-runner", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "token-Admin", token)
	assert.Equal(t, 3, api.calls)
}

func TestGenerateAPITokenStopsOnUnauthorized(t *testing.T) {
	api := &fakeTokens{errs: []error{&central.APIError{StatusCode: http.StatusUnauthorized}}}

	_, err := GenerateAPIToken(context.Background(), api, log.Discard(), "rhacs-runner", time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 1, api.calls)
	assert.True(t, central.IsStatus(err, http.StatusUnauthorized))
}

func TestGenerateAPITokenGivesUp(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = &central.APIError{StatusCode: http.StatusInternalServerError}
	}
	api := &fakeTokens{errs: errs}

	_, err := GenerateAPIToken(context.Background(), api, log.Discard(), "rhacs-runner", time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, TokenAttempts, api.calls)

	var apiErr *central.APIError
	assert.True(t, errors.As(err, &apiErr))
}
