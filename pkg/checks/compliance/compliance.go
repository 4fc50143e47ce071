/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-09

This file implements the compliance checks. It:

- Verifies the scan configuration exists in Central and targets the secured cluster
- Reports the result of the last ComplianceSuite run
*/

package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// API is the part of the Central API the checks use
type API interface {
	ClusterByName(ctx context.Context, name string) (*central.Cluster, error)
	ScanConfigurationByName(ctx context.Context, name string) (*central.ScanConfigurationStatus, error)
}

// ScanConfigCheck checks the scheduled scan configuration
type ScanConfigCheck struct {
	healthcheck.BaseCheck
	api         API
	scanName    string
	clusterName string
}

// NewScanConfigCheck creates a new scan configuration check
func NewScanConfigCheck(api API, scanName, clusterName string) *ScanConfigCheck {
	return &ScanConfigCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"compliance-scan-config",
			"Compliance Scan Configuration",
			"Checks that the compliance scan is scheduled for the secured cluster",
			types.CategoryCompliance,
		),
		api:         api,
		scanName:    scanName,
		clusterName: clusterName,
	}
}

// Run executes the check
func (c *ScanConfigCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	if c.api == nil {
		result := healthcheck.Critical(c.ID(), "Central API credentials are not configured")
		result.AddRecommendation("Run `rhacs-runner setup`")
		return result, nil
	}

	cfg, err := c.api.ScanConfigurationByName(ctx, c.scanName)
	if err != nil {
		return healthcheck.Result{}, err
	}
	if cfg == nil {
		result := healthcheck.Critical(c.ID(), "Scan configuration %s not found", c.scanName)
		result.AddRecommendation("Run `rhacs-runner compliance scan`")
		return result, nil
	}

	cluster, err := c.api.ClusterByName(ctx, c.clusterName)
	var notFound *central.ClusterNotFoundError
	if errors.As(err, &notFound) {
		return healthcheck.Warning(c.ID(), "Scan %s exists but cluster %s is not registered", c.scanName, c.clusterName), nil
	}
	if err != nil {
		return healthcheck.Result{}, err
	}

	targeted := false
	for _, id := range cfg.ClusterIDs() {
		if id == cluster.ID {
			targeted = true
		}
	}
	if !targeted {
		result := healthcheck.Warning(c.ID(), "Scan %s does not target cluster %s", c.scanName, c.clusterName)
		result.AddRecommendation("Run `rhacs-runner compliance scan` to update the scan configuration")
		return result, nil
	}

	var errs []string
	for _, status := range cfg.ClusterStatus {
		errs = append(errs, status.Errors...)
	}
	if len(errs) > 0 {
		return healthcheck.Warning(c.ID(), "Scan %s reports errors", c.scanName).WithDetail(strings.Join(errs, "\n")), nil
	}

	result := healthcheck.OK(c.ID(), "Scan %s covers profiles %s", c.scanName, strings.Join(cfg.ScanConfig.Profiles, ", "))
	result.AddMetadata("scan_id", cfg.ID)
	if cfg.LastUpdatedTime != "" {
		result.AddMetadata("last_updated", cfg.LastUpdatedTime)
	}
	return result, nil
}

// SuiteReader returns the state of a ComplianceSuite
type SuiteReader interface {
	Suite(ctx context.Context, name string) (*compliance.SuiteStatus, error)
}

// SuiteCheck checks the result of the last scan run
type SuiteCheck struct {
	healthcheck.BaseCheck
	reader   SuiteReader
	scanName string
}

// NewSuiteCheck creates a new ComplianceSuite check
func NewSuiteCheck(reader SuiteReader, scanName string) *SuiteCheck {
	return &SuiteCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"compliance-suite",
			"Compliance Suite",
			"Checks the result of the last compliance scan run",
			types.CategoryCompliance,
		),
		reader:   reader,
		scanName: scanName,
	}
}

// Run executes the check
func (c *SuiteCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	suite, err := c.reader.Suite(ctx, c.scanName)
	if apierrors.IsNotFound(err) {
		result := healthcheck.Warning(c.ID(), "Scan %s has not run yet", c.scanName)
		result.AddRecommendation("Run `rhacs-runner compliance scan --run-now`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, fmt.Errorf("failed to get compliancesuite %s: %w", c.scanName, err)
	}

	var detail strings.Builder
	for _, scan := range suite.Scans {
		fmt.Fprintf(&detail, "%s: %s %s\n", scan.Name, scan.Phase, scan.Result)
	}

	var result healthcheck.Result
	switch {
	case suite.Phase != compliance.PhaseDone:
		result = healthcheck.Warning(c.ID(), "Scan %s is in phase %s", c.scanName, suite.Phase)
	case suite.Result == compliance.ResultCompliant:
		result = healthcheck.OK(c.ID(), "Scan %s is %s", c.scanName, suite.Result)
	case suite.Result == compliance.ResultNonCompliant:
		result = healthcheck.Warning(c.ID(), "Scan %s is %s", c.scanName, suite.Result)
		result.AddRecommendation("Review the failed rules in the RHACS Compliance dashboard")
	default:
		result = healthcheck.Critical(c.ID(), "Scan %s finished with result %s", c.scanName, suite.Result)
		result.AddRecommendation(fmt.Sprintf("Inspect the scan pods with `oc get pods -n %s`", olm.ComplianceOperator.Namespace))
	}
	return result.WithDetail(strings.TrimSpace(detail.String())), nil
}

// GetChecks returns the compliance checks. api may be nil when no Central
// credentials are configured.
func GetChecks(api API, reader SuiteReader, scanName, clusterName string) []healthcheck.Check {
	return []healthcheck.Check{
		NewScanConfigCheck(api, scanName, clusterName),
		NewSuiteCheck(reader, scanName),
	}
}
