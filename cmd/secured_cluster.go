package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newSecuredClusterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secured-cluster",
		Short: "Manage the secured cluster services",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Register this cluster with Central and wait until it is healthy",
		Long: `Applies an init bundle generated by Central, unless its secrets already exist, creates the
SecuredCluster resource, waits for sensor, admission control and collector and polls Central
until the cluster reports HEALTHY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return securedClusterInstallSteps(a) })
		},
	})
	return cmd
}

func securedClusterInstallSteps(a *app) []steps.Step {
	m := a.rhacs()

	return []steps.Step{
		steps.Action("Apply the init bundle", func(ctx context.Context) error {
			api, err := a.centralAPI(ctx)
			if err != nil {
				return err
			}
			name := a.clusterName(ctx)
			a.log.Info("Secured cluster name: %s", name)
			_, err = m.EnsureInitBundle(ctx, api, name)
			return err
		}),
		steps.Action("Ensure SecuredCluster", func(ctx context.Context) error {
			_, err := m.EnsureSecuredCluster(ctx, a.clusterName(ctx))
			return err
		}),
		steps.Action("Wait for the secured cluster services", m.WaitForSecuredCluster),
		steps.Action("Wait for the cluster to report HEALTHY", func(ctx context.Context) error {
			api, err := a.centralAPI(ctx)
			if err != nil {
				return err
			}
			_, err = m.WaitForClusterHealthy(ctx, api, a.clusterName(ctx))
			return err
		}),
	}
}
