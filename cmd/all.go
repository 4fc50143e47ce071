package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newAllCmd(a *app) *cobra.Command {
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Install and configure everything, then verify",
		Long: `Runs, in order: operator install, central install, setup, cert-manager install,
secured-cluster install, compliance install, compliance scan and metrics configure, followed by
verify. Every step is idempotent, so a failed run can simply be started again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return allSteps(a, skipVerify) })
		},
	}
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Do not run verify at the end")
	return cmd
}

func allSteps(a *app, skipVerify bool) []steps.Step {
	var list []steps.Step
	list = append(list, operatorInstallSteps(a, "")...)
	list = append(list, centralInstallSteps(a)...)
	list = append(list, setupSteps(a)...)
	list = append(list, certManagerInstallSteps(a)...)
	list = append(list, securedClusterInstallSteps(a)...)
	list = append(list, complianceInstallSteps(a)...)
	list = append(list, complianceScanSteps(a, compliance.DefaultScanRequest(), false)...)
	list = append(list, metricsConfigureSteps(a)...)
	if skipVerify {
		return list
	}

	return append(list, steps.Action("Verify the installation", func(ctx context.Context) error {
		return runVerify(ctx, a, verifyOptions{
			format:       "summary",
			outputDir:    ".",
			scanName:     compliance.DefaultScanName,
			checkTimeout: requestTimeout,
		})
	}))
}
