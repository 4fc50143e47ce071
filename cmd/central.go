package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newCentralCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "central",
		Short: "Manage Central",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Create Central and wait until it is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return centralInstallSteps(a) })
		},
	})
	return cmd
}

func centralInstallSteps(a *app) []steps.Step {
	m := a.rhacs()

	return []steps.Step{
		steps.Action("Ensure Central", func(ctx context.Context) error {
			_, err := m.EnsureCentral(ctx)
			return err
		}),
		steps.Action("Wait for Central", m.WaitForCentral),
		steps.Action("Discover the Central endpoint", func(ctx context.Context) error {
			endpoint, err := m.CentralEndpoint(ctx)
			if err != nil {
				return err
			}
			if a.cfg.RoxEndpoint == "" {
				a.cfg.RoxEndpoint = endpoint
			}
			a.log.Success("Central is available at https://%s", endpoint)
			return nil
		}),
	}
}
