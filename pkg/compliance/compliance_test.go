package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	clienttesting "k8s.io/client-go/testing"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/kube/kubetest"
	"github.com/ayaseen/rhacs-runner/pkg/log"
)

func testScanner(objs ...runtime.Object) *Scanner {
	s, _ := testScannerWithFakes(objs...)
	return s
}

func testScannerWithFakes(objs ...runtime.Object) (*Scanner, *kubetest.Fakes) {
	c, f := kubetest.NewClients(kubetest.Objects{Dynamic: objs})
	w := &kube.Waiter{Interval: time.Millisecond, Timeout: 100 * time.Millisecond}
	return NewScanner(c, w, log.Discard()), f
}

// suiteSequence makes every get of the suite return the next state, repeating the last one
func suiteSequence(f *kubetest.Fakes, states ...*unstructured.Unstructured) {
	calls := 0
	f.Dynamic.PrependReactor("get", "compliancesuites", func(clienttesting.Action) (bool, runtime.Object, error) {
		state := states[len(states)-1]
		if calls < len(states) {
			state = states[calls]
		}
		calls++
		return true, state.DeepCopy(), nil
	})
}

func suite(name, phase, result string) *unstructured.Unstructured {
	return suiteEndedAt(name, phase, result, "")
}

func suiteEndedAt(name, phase, result, end string) *unstructured.Unstructured {
	scan := func(scanName string) map[string]interface{} {
		m := map[string]interface{}{"name": scanName, "phase": phase, "result": result}
		if end != "" {
			m["endTimestamp"] = end
		}
		return m
	}
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "compliance.openshift.io/v1alpha1",
		"kind":       "ComplianceSuite",
		"metadata":   map[string]interface{}{"name": name, "namespace": "openshift-compliance"},
		"status": map[string]interface{}{
			"phase":  phase,
			"result": result,
			"scanStatuses": []interface{}{
				scan("ocp4-cis"),
				scan("ocp4-cis-node-worker"),
			},
		},
	}}
}

type fakeScanAPI struct {
	clusters map[string]string
	saved    []central.ScanConfiguration
	runs     []string
}

func (f *fakeScanAPI) ClusterByName(_ context.Context, name string) (*central.Cluster, error) {
	id, ok := f.clusters[name]
	if !ok {
		return nil, &central.ClusterNotFoundError{Name: name, Known: []string{"local-cluster"}}
	}
	return &central.Cluster{ID: id, Name: name}, nil
}

func (f *fakeScanAPI) EnsureScanConfiguration(_ context.Context, cfg central.ScanConfiguration) (string, bool, error) {
	f.saved = append(f.saved, cfg)
	return "scan-1", len(f.saved) == 1, nil
}

func (f *fakeScanAPI) RunScanConfiguration(_ context.Context, id string) error {
	f.runs = append(f.runs, id)
	return nil
}

func TestDefaultScanRequest(t *testing.T) {
	req := DefaultScanRequest()
	require.NoError(t, req.Validate())

	cfg := req.Configuration("c1")
	assert.Equal(t, DefaultScanName, cfg.ScanName)
	assert.Equal(t, []string{"ocp4-cis", "ocp4-cis-node"}, cfg.ScanConfig.Profiles)
	assert.False(t, cfg.ScanConfig.OneTimeScan)
	require.NotNil(t, cfg.ScanConfig.ScanSchedule)
	assert.Equal(t, central.IntervalWeekly, cfg.ScanConfig.ScanSchedule.IntervalType)
	assert.Equal(t, []int32{0}, cfg.ScanConfig.ScanSchedule.DaysOfWeek.Days)
	assert.Equal(t, int32(0), cfg.ScanConfig.ScanSchedule.Hour)
	assert.Equal(t, []string{"c1"}, cfg.Clusters)
}

func TestScanRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScanRequest)
	}{
		{"no name", func(r *ScanRequest) { r.Name = "" }},
		{"no profiles", func(r *ScanRequest) { r.Profiles = nil }},
		{"bad weekday", func(r *ScanRequest) { r.Weekday = 7 }},
		{"bad hour", func(r *ScanRequest) { r.Hour = 24 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := DefaultScanRequest()
			tt.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}
}

func TestEnsureScan(t *testing.T) {
	s := testScanner()
	api := &fakeScanAPI{clusters: map[string]string{"local-cluster": "c1"}}

	id, err := s.EnsureScan(context.Background(), api, "local-cluster", DefaultScanRequest())
	require.NoError(t, err)
	assert.Equal(t, "scan-1", id)
	require.Len(t, api.saved, 1)
	assert.Equal(t, []string{"c1"}, api.saved[0].Clusters)

	_, err = s.EnsureScan(context.Background(), api, "prod", DefaultScanRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local-cluster")
}

func TestRunNowIgnoresPreviousRun(t *testing.T) {
	s := testScanner(suiteEndedAt(DefaultScanName, PhaseDone, ResultCompliant, "2025-05-04T00:12:00Z"))
	api := &fakeScanAPI{}

	_, err := s.RunNow(context.Background(), api, "scan-1", DefaultScanName)
	require.Error(t, err)
	assert.True(t, kube.IsTimeout(err))
	assert.Equal(t, []string{"scan-1"}, api.runs)
}

func TestRunNowWaitsForTriggeredRun(t *testing.T) {
	s, f := testScannerWithFakes()
	suiteSequence(f,
		suiteEndedAt(DefaultScanName, PhaseDone, ResultCompliant, "2025-05-04T00:12:00Z"),
		suiteEndedAt(DefaultScanName, PhaseDone, ResultCompliant, "2025-05-04T00:12:00Z"),
		suiteEndedAt(DefaultScanName, "RUNNING", "NOT-AVAILABLE", ""),
		suiteEndedAt(DefaultScanName, PhaseDone, ResultNonCompliant, "2025-05-09T10:41:00Z"),
	)
	api := &fakeScanAPI{}

	status, err := s.RunNow(context.Background(), api, "scan-1", DefaultScanName)
	require.NoError(t, err)
	assert.Equal(t, []string{"scan-1"}, api.runs)
	assert.Equal(t, ResultNonCompliant, status.Result)
	require.Len(t, status.Scans, 2)
	assert.Equal(t, time.Date(2025, 5, 9, 10, 41, 0, 0, time.UTC), status.LastEnd())
}

func TestRunNowAcceptsNewerEndTime(t *testing.T) {
	s, f := testScannerWithFakes()
	// the scan finished between two polls, so RUNNING is never observed
	suiteSequence(f,
		suiteEndedAt(DefaultScanName, PhaseDone, ResultError, "2025-05-04T00:12:00Z"),
		suiteEndedAt(DefaultScanName, PhaseDone, ResultCompliant, "2025-05-09T10:41:00Z"),
	)

	status, err := s.RunNow(context.Background(), &fakeScanAPI{}, "scan-1", DefaultScanName)
	require.NoError(t, err)
	assert.Equal(t, ResultCompliant, status.Result)
}

func TestRunNowFirstRun(t *testing.T) {
	s, f := testScannerWithFakes()
	calls := 0
	f.Dynamic.PrependReactor("get", "compliancesuites", func(clienttesting.Action) (bool, runtime.Object, error) {
		calls++
		if calls == 1 {
			return false, nil, nil
		}
		return true, suiteEndedAt(DefaultScanName, PhaseDone, ResultCompliant, "2025-05-09T10:41:00Z"), nil
	})

	status, err := s.RunNow(context.Background(), &fakeScanAPI{}, "scan-1", DefaultScanName)
	require.NoError(t, err)
	assert.Equal(t, ResultCompliant, status.Result)
}

func TestWaitForSuiteAcceptsDone(t *testing.T) {
	s := testScanner(suite(DefaultScanName, PhaseDone, ResultNonCompliant))

	status, err := s.WaitForSuite(context.Background(), DefaultScanName)
	require.NoError(t, err)
	assert.Equal(t, ResultNonCompliant, status.Result)
	assert.Len(t, status.Scans, 2)
}

func TestWaitForSuiteTimeout(t *testing.T) {
	s := testScanner(suite(DefaultScanName, "RUNNING", "NOT-AVAILABLE"))

	_, err := s.WaitForSuite(context.Background(), DefaultScanName)
	require.Error(t, err)
	assert.True(t, kube.IsTimeout(err))
	assert.Contains(t, err.Error(), "phase RUNNING")
}
