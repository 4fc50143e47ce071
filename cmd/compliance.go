package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newComplianceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Manage the Compliance Operator and compliance scans",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install the Compliance Operator through OLM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return complianceInstallSteps(a) })
		},
	})

	req := compliance.DefaultScanRequest()
	var runNow bool
	scan := &cobra.Command{
		Use:   "scan",
		Short: "Schedule a compliance scan for this cluster",
		Long: `Creates or updates a weekly scan configuration in Central targeting this cluster. With
--run-now the scan is started at once and the command waits for its ComplianceSuite.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			return a.run(cmd.Context(), func() []steps.Step { return complianceScanSteps(a, req, runNow) })
		},
	}
	scan.Flags().StringVar(&req.Name, "scan-name", req.Name, "Name of the scan configuration")
	scan.Flags().StringSliceVar(&req.Profiles, "profiles", req.Profiles, "Compliance profiles to scan")
	scan.Flags().Int32Var(&req.Weekday, "weekday", req.Weekday, "Day of the week the scan runs, 0 is Sunday")
	scan.Flags().Int32Var(&req.Hour, "hour", req.Hour, "Hour the scan runs")
	scan.Flags().BoolVar(&runNow, "run-now", false, "Start the scan now and wait for the result")

	cmd.AddCommand(scan)
	return cmd
}

func complianceInstallSteps(a *app) []steps.Step {
	s := a.scanner()
	inst := a.installer()

	return []steps.Step{
		steps.Action("Install the Compliance Operator", func(ctx context.Context) error {
			_, err := s.EnsureOperator(ctx, inst)
			return err
		}),
	}
}

func complianceScanSteps(a *app, req compliance.ScanRequest, runNow bool) []steps.Step {
	s := a.scanner()
	var id string

	list := []steps.Step{
		steps.Action("Configure scan "+req.Name, func(ctx context.Context) error {
			api, err := a.centralAPI(ctx)
			if err != nil {
				return err
			}
			id, err = s.EnsureScan(ctx, api, a.clusterName(ctx), req)
			return err
		}),
	}
	if !runNow {
		return list
	}

	return append(list, steps.Action("Run scan "+req.Name, func(ctx context.Context) error {
		api, err := a.centralAPI(ctx)
		if err != nil {
			return err
		}
		suite, err := s.RunNow(ctx, api, id, req.Name)
		if err != nil {
			return err
		}
		a.log.Success("Suite %s finished: %s", suite.Name, suite.Result)
		for _, scan := range suite.Scans {
			a.log.Info("%s: %s", scan.Name, scan.Result)
		}
		return nil
	}))
}
