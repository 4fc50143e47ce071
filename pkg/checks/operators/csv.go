/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-08

This file implements the operator installation checks. It:

- Reads the Subscription of each operator installed through OLM
- Verifies that the installed ClusterServiceVersion reached the Succeeded phase
- Reports the installed version and channel
*/

package operators

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// CSVReader reads Subscriptions and CSVs
type CSVReader interface {
	InstalledCSV(ctx context.Context, op olm.Operator) (string, error)
	CSVPhase(ctx context.Context, namespace, name string) (string, string, error)
}

// CSVCheck checks that an operator's CSV succeeded
type CSVCheck struct {
	healthcheck.BaseCheck
	olm     CSVReader
	op      olm.Operator
	command string
}

// NewCSVCheck creates a CSV check for op. command is the rhacs-runner
// subcommand that installs it.
func NewCSVCheck(reader CSVReader, op olm.Operator, command string) *CSVCheck {
	return &CSVCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"operator-"+op.Package,
			fmt.Sprintf("Operator %s", op.Package),
			fmt.Sprintf("Checks that the %s ClusterServiceVersion is Succeeded", op.Package),
			types.CategoryOperators,
		),
		olm:     reader,
		op:      op,
		command: command,
	}
}

// Run executes the check
func (c *CSVCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	csv, err := c.olm.InstalledCSV(ctx, c.op)
	if apierrors.IsNotFound(err) {
		result := healthcheck.Critical(c.ID(), "Subscription %s/%s not found", c.op.Namespace, c.op.Package)
		result.AddRecommendation(fmt.Sprintf("Run `rhacs-runner %s`", c.command))
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, err
	}
	if csv == "" {
		result := healthcheck.Critical(c.ID(), "Subscription %s has no installed CSV", c.op.Package)
		result.AddRecommendation(fmt.Sprintf("Check pending InstallPlans with `oc get installplan -n %s`", c.op.Namespace))
		return result, nil
	}

	phase, message, err := c.olm.CSVPhase(ctx, c.op.Namespace, csv)
	if err != nil {
		return healthcheck.Result{}, fmt.Errorf("failed to read csv %s: %w", csv, err)
	}

	var result healthcheck.Result
	switch phase {
	case olm.PhaseSucceeded:
		result = healthcheck.OK(c.ID(), "%s is %s", csv, phase)
	case olm.PhaseFailed:
		result = healthcheck.Critical(c.ID(), "%s is %s: %s", csv, phase, message)
		result.AddRecommendation(fmt.Sprintf("Inspect the operator with `oc describe csv %s -n %s`", csv, c.op.Namespace))
	default:
		result = healthcheck.Warning(c.ID(), "%s is in phase %q", csv, phase)
		if message != "" {
			result = result.WithDetail(message)
		}
	}

	result.AddMetadata("csv", csv)
	if v, err := olm.CSVVersion(csv); err == nil {
		result.AddMetadata("version", v.String())
	}
	return result, nil
}

// GetChecks returns the CSV checks for every operator the tool installs
func GetChecks(reader CSVReader) []healthcheck.Check {
	return []healthcheck.Check{
		NewCSVCheck(reader, olm.RHACSOperator, "operator install"),
		NewCSVCheck(reader, olm.CertManagerOperator, "cert-manager install"),
		NewCSVCheck(reader, olm.ComplianceOperator, "compliance install"),
	}
}
