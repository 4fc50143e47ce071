/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-06

This file schedules compliance scans through Central. It:

- Builds the scan configuration for the CIS profiles on a weekly schedule
- Creates or updates the configuration for the secured cluster
- Optionally triggers an immediate run
- Waits for the resulting ComplianceSuite to finish and reports its result
*/

package compliance

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
)

// DefaultScanName names the scan configuration and the suite it produces
const DefaultScanName = "rhacs-cis-weekly"

// Suite phases and results reported by the Compliance Operator
const (
	PhaseDone          = "DONE"
	ResultCompliant    = "COMPLIANT"
	ResultNonCompliant = "NON-COMPLIANT"
	ResultError        = "ERROR"
)

// DefaultProfiles are scanned unless others are requested
var DefaultProfiles = []string{"ocp4-cis", "ocp4-cis-node"}

// ScanRequest describes the scan to schedule
type ScanRequest struct {
	Name        string
	Profiles    []string
	Description string

	// Weekday is 0 for Sunday
	Weekday int32
	Hour    int32
	Minute  int32
}

// DefaultScanRequest scans the CIS profiles every Sunday at midnight
func DefaultScanRequest() ScanRequest {
	return ScanRequest{
		Name:        DefaultScanName,
		Profiles:    append([]string(nil), DefaultProfiles...),
		Description: "Weekly CIS benchmark scan",
	}
}

// Configuration returns the Central scan configuration targeting clusterIDs
func (r ScanRequest) Configuration(clusterIDs ...string) central.ScanConfiguration {
	return central.ScanConfiguration{
		ScanName: r.Name,
		ScanConfig: central.ScanConfig{
			OneTimeScan: false,
			Profiles:    r.Profiles,
			Description: r.Description,
			ScanSchedule: &central.Schedule{
				IntervalType: central.IntervalWeekly,
				Hour:         r.Hour,
				Minute:       r.Minute,
				DaysOfWeek:   &central.DaysOfWeek{Days: []int32{r.Weekday}},
			},
		},
		Clusters: clusterIDs,
	}
}

// Validate checks the request before it is sent to Central
func (r ScanRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("scan name cannot be empty")
	}
	if len(r.Profiles) == 0 {
		return fmt.Errorf("at least one compliance profile is required")
	}
	if r.Weekday < 0 || r.Weekday > 6 {
		return fmt.Errorf("invalid weekday %d (0-6, 0 is Sunday)", r.Weekday)
	}
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("invalid scan time %02d:%02d", r.Hour, r.Minute)
	}
	return nil
}

// ScanAPI is the part of the Central API used for scans
type ScanAPI interface {
	ClusterByName(ctx context.Context, name string) (*central.Cluster, error)
	EnsureScanConfiguration(ctx context.Context, cfg central.ScanConfiguration) (string, bool, error)
	RunScanConfiguration(ctx context.Context, id string) error
}

// Scanner schedules scans and follows their ComplianceSuites
type Scanner struct {
	clients *kube.Clients
	waiter  *kube.Waiter
	log     *log.Logger
}

// NewScanner creates a Scanner
func NewScanner(clients *kube.Clients, waiter *kube.Waiter, logger *log.Logger) *Scanner {
	return &Scanner{clients: clients, waiter: waiter, log: logger}
}

// EnsureOperator installs the Compliance Operator
func (s *Scanner) EnsureOperator(ctx context.Context, installer *olm.Installer) (string, error) {
	return installer.Install(ctx, olm.ComplianceOperator)
}

// EnsureScan creates or updates the scan configuration for clusterName and
// returns its id.
func (s *Scanner) EnsureScan(ctx context.Context, api ScanAPI, clusterName string, req ScanRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	cluster, err := api.ClusterByName(ctx, clusterName)
	if err != nil {
		return "", err
	}

	id, changed, err := api.EnsureScanConfiguration(ctx, req.Configuration(cluster.ID))
	if err != nil {
		return "", fmt.Errorf("failed to configure scan %s: %w", req.Name, err)
	}
	if changed {
		s.log.Info("Scan configuration %s saved (id %s)", req.Name, id)
	} else {
		s.log.Info("Scan configuration %s already up to date (id %s)", req.Name, id)
	}
	return id, nil
}

// RunNow triggers the scan and waits for the suite to finish the run it
// started. A suite still DONE from an earlier run is not accepted: the wait
// needs a phase other than DONE or a scan that ended after the last end time
// seen before the trigger.
func (s *Scanner) RunNow(ctx context.Context, api ScanAPI, id, name string) (*SuiteStatus, error) {
	var previous time.Time
	before, err := s.Suite(ctx, name)
	switch {
	case apierrors.IsNotFound(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read compliancesuite %s: %w", name, err)
	default:
		previous = before.LastEnd()
	}

	if err := api.RunScanConfiguration(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to start scan %s: %w", name, err)
	}
	s.log.Info("Scan %s started", name)

	started := false
	return s.waitForSuite(ctx, name, func(status *SuiteStatus) bool {
		if status.Phase != PhaseDone {
			started = true
			return false
		}
		return started || status.LastEnd().After(previous)
	})
}

// SuiteStatus is the state of a ComplianceSuite
type SuiteStatus struct {
	Name   string
	Phase  string
	Result string
	Scans  []ScanStatus
}

// ScanStatus is the state of one scan within a suite
type ScanStatus struct {
	Name   string
	Phase  string
	Result string

	// EndTimestamp is zero while the scan has not finished
	EndTimestamp time.Time
}

// LastEnd returns the latest scan end time of the suite
func (s *SuiteStatus) LastEnd() time.Time {
	var last time.Time
	for _, scan := range s.Scans {
		if scan.EndTimestamp.After(last) {
			last = scan.EndTimestamp
		}
	}
	return last
}

// Suite returns the status of the named ComplianceSuite
func (s *Scanner) Suite(ctx context.Context, name string) (*SuiteStatus, error) {
	obj, err := s.clients.Dynamic.Resource(kube.ComplianceSuiteGVR).Namespace(olm.ComplianceOperator.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	status := &SuiteStatus{Name: name}
	status.Phase, _, _ = unstructured.NestedString(obj.Object, "status", "phase")
	status.Result, _, _ = unstructured.NestedString(obj.Object, "status", "result")

	scans, _, _ := unstructured.NestedSlice(obj.Object, "status", "scanStatuses")
	for _, raw := range scans {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var scan ScanStatus
		scan.Name, _, _ = unstructured.NestedString(m, "name")
		scan.Phase, _, _ = unstructured.NestedString(m, "phase")
		scan.Result, _, _ = unstructured.NestedString(m, "result")
		if end, _, _ := unstructured.NestedString(m, "endTimestamp"); end != "" {
			if t, err := time.Parse(time.RFC3339, end); err == nil {
				scan.EndTimestamp = t
			}
		}
		status.Scans = append(status.Scans, scan)
	}
	return status, nil
}

// WaitForSuite waits until the suite reaches phase DONE
func (s *Scanner) WaitForSuite(ctx context.Context, name string) (*SuiteStatus, error) {
	return s.waitForSuite(ctx, name, func(status *SuiteStatus) bool {
		return status.Phase == PhaseDone
	})
}

func (s *Scanner) waitForSuite(ctx context.Context, name string, finished func(*SuiteStatus) bool) (*SuiteStatus, error) {
	var last *SuiteStatus
	err := s.waiter.Poll(ctx, "compliancesuite "+name, func(ctx context.Context) (bool, string, error) {
		status, err := s.Suite(ctx, name)
		if apierrors.IsNotFound(err) {
			return false, "not created", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}
		last = status
		return finished(status), fmt.Sprintf("phase %s result %s", status.Phase, status.Result), nil
	})
	if err != nil {
		return nil, err
	}

	switch last.Result {
	case ResultCompliant:
		s.log.Success("Compliance suite %s finished: %s", name, last.Result)
	case ResultError:
		s.log.Warning("Compliance suite %s finished with errors", name)
	default:
		s.log.Info("Compliance suite %s finished: %s", name, last.Result)
	}
	return last, nil
}
