/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-09

This file acts as the provider for all verification checks. It includes:

- The dependencies the checks need, built once by the verify command
- The registry of checks in report order

Checks that need the Central API are still registered when no credentials are
configured and report what is missing.
*/

package checks

import (
	"github.com/ayaseen/rhacs-runner/pkg/certmanager"
	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/checks/certificates"
	"github.com/ayaseen/rhacs-runner/pkg/checks/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/checks/monitoring"
	"github.com/ayaseen/rhacs-runner/pkg/checks/operators"
	"github.com/ayaseen/rhacs-runner/pkg/checks/stackrox"
	compliancepkg "github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	monitoringpkg "github.com/ayaseen/rhacs-runner/pkg/monitoring"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
)

// Dependencies holds what the checks run against
type Dependencies struct {
	Clients     *kube.Clients
	Installer   *olm.Installer
	RHACS       *rhacs.Manager
	CertManager *certmanager.Manager
	Scanner     *compliancepkg.Scanner

	// Central is nil when no endpoint or token is configured
	Central *central.Client

	// Querier is nil when cluster monitoring cannot be queried
	Querier monitoringpkg.Querier

	Endpoint    string
	IssuerName  string
	ClusterName string
	ScanName    string
}

// GetAllChecks returns every verification check
func GetAllChecks(deps Dependencies) []healthcheck.Check {
	var (
		rox     stackrox.API
		scans   compliance.API
		metrics monitoring.MetricsAPI
	)
	// a nil *central.Client must stay a nil interface
	if deps.Central != nil {
		rox, scans, metrics = deps.Central, deps.Central, deps.Central
	}

	var checks []healthcheck.Check
	checks = append(checks, operators.GetChecks(deps.Installer)...)
	checks = append(checks, stackrox.GetChecks(deps.Clients, rox, deps.RHACS.Namespace(), deps.Endpoint, deps.ClusterName)...)
	checks = append(checks, certificates.GetChecks(deps.Clients, deps.RHACS, deps.CertManager, deps.IssuerName)...)
	checks = append(checks, compliance.GetChecks(scans, deps.Scanner, deps.ScanName, deps.ClusterName)...)
	checks = append(checks, monitoring.GetChecks(deps.Clients, metrics, deps.Querier, deps.RHACS.Namespace())...)
	return checks
}
