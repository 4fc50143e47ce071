package monitoring

import (
	"context"
	"testing"
	"time"

	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/kube/kubetest"
	"github.com/ayaseen/rhacs-runner/pkg/monitoring"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

const ns = "stackrox"

const builtinOnly = `# TYPE rox_central_process_queue_length gauge
rox_central_process_queue_length 0
`

const withCustom = builtinOnly + `# TYPE rox_central_image_vuln_severity gauge
rox_central_image_vuln_severity{Cluster="local-cluster",Severity="IMPORTANT_VULNERABILITY_SEVERITY"} 12
rox_central_image_vuln_severity{Cluster="local-cluster",Severity="LOW_VULNERABILITY_SEVERITY"} 40
# TYPE rox_central_node_vuln_severity gauge
rox_central_node_vuln_severity{Cluster="local-cluster"} 3
# TYPE rox_central_policy_violation_severity gauge
rox_central_policy_violation_severity{Cluster="local-cluster"} 5
`

type fakeMetrics struct {
	text string
}

func (f *fakeMetrics) Metrics(context.Context) (map[string]*dto.MetricFamily, error) {
	return central.ParseMetrics([]byte(f.text))
}

func TestCentralMetricsCheck(t *testing.T) {
	result, err := NewCentralMetricsCheck(&fakeMetrics{text: withCustom}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, result.Status)
	assert.Equal(t, "4 metric families, 4 custom series", result.Message)

	result, err = NewCentralMetricsCheck(&fakeMetrics{text: builtinOnly}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusWarning, result.Status)
	assert.Contains(t, result.Message, "rox_central_image_vuln_*")

	result, err = NewCentralMetricsCheck(&fakeMetrics{text: "# TYPE go_goroutines gauge\ngo_goroutines 12\n"}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, result.Status)

	result, err = NewCentralMetricsCheck(nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, result.Status)
}

func monitoringConfig(config string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: monitoring.MonitoringConfigMap, Namespace: monitoring.MonitoringNamespace},
		Data:       map[string]string{monitoring.MonitoringConfigKey: config},
	}
}

func serviceMonitor() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "monitoring.coreos.com/v1",
		"kind":       "ServiceMonitor",
		"metadata":   map[string]interface{}{"name": monitoring.ServiceMonitorName, "namespace": ns},
	}}
}

func tokenSecret() *corev1.Secret {
	return &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: monitoring.TokenSecretName, Namespace: ns}}
}

func TestUserWorkloadCheck(t *testing.T) {
	tests := []struct {
		name    string
		objs    kubetest.Objects
		status  types.Status
		message string
	}{
		{
			name:    "no configmap",
			status:  types.StatusCritical,
			message: "not enabled",
		},
		{
			name:    "disabled",
			objs:    kubetest.Objects{Kube: []runtime.Object{monitoringConfig("enableUserWorkload: false\n")}},
			status:  types.StatusCritical,
			message: "not enabled",
		},
		{
			name:    "invalid",
			objs:    kubetest.Objects{Kube: []runtime.Object{monitoringConfig("enableUserWorkload: [")}},
			status:  types.StatusCritical,
			message: "Invalid config.yaml",
		},
		{
			name:    "no servicemonitor",
			objs:    kubetest.Objects{Kube: []runtime.Object{monitoringConfig("enableUserWorkload: true\n")}},
			status:  types.StatusCritical,
			message: "ServiceMonitor stackrox/central-metrics not found",
		},
		{
			name: "no token",
			objs: kubetest.Objects{
				Kube:    []runtime.Object{monitoringConfig("enableUserWorkload: true\n")},
				Dynamic: []runtime.Object{serviceMonitor()},
			},
			status:  types.StatusCritical,
			message: "scrape token not found",
		},
		{
			name: "configured",
			objs: kubetest.Objects{
				Kube:    []runtime.Object{monitoringConfig("enableUserWorkload: true\n"), tokenSecret()},
				Dynamic: []runtime.Object{serviceMonitor()},
			},
			status: types.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := kubetest.NewClients(tt.objs)
			result, err := NewUserWorkloadCheck(c, ns).Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
			assert.Contains(t, result.Message, tt.message)
		})
	}
}

type fakeQuerier struct {
	value model.Value
}

func (f *fakeQuerier) Query(context.Context, string, time.Time, ...promv1.Option) (model.Value, promv1.Warnings, error) {
	return f.value, nil, nil
}

func TestScrapeCheck(t *testing.T) {
	result, err := NewScrapeCheck(nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknown, result.Status)
	assert.Equal(t, types.ResultKeyAdvisory, result.ResultKey)

	result, err = NewScrapeCheck(&fakeQuerier{value: model.Vector{}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusWarning, result.Status)

	result, err = NewScrapeCheck(&fakeQuerier{value: model.Vector{{Value: 57}}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusOK, result.Status)
	assert.Equal(t, "Prometheus collects 57 Central series", result.Message)
}
