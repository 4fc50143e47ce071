package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newMetricsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Manage Central metrics",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "configure",
		Short: "Enable Central custom metrics and their collection by cluster monitoring",
		Long: `Enables the image vulnerability, node vulnerability and policy violation metrics in
Central, enables user workload monitoring, stores the API token for Prometheus and creates a
ServiceMonitor for Central.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return metricsConfigureSteps(a) })
		},
	})
	return cmd
}

func metricsConfigureSteps(a *app) []steps.Step {
	mon := a.monitoring()

	return []steps.Step{
		steps.Action("Enable custom metrics in Central", func(ctx context.Context) error {
			api, err := a.centralAPI(ctx)
			if err != nil {
				return err
			}
			changed, err := api.EnsureCustomMetrics(ctx, central.DefaultCustomMetrics())
			if err != nil {
				return err
			}
			if changed {
				a.log.Success("Custom metrics enabled")
			} else {
				a.log.Info("Custom metrics already enabled")
			}
			return nil
		}),
		steps.Action("Enable user workload monitoring", func(ctx context.Context) error {
			_, err := mon.EnableUserWorkload(ctx)
			return err
		}),
		steps.Action("Store the scrape token", func(ctx context.Context) error {
			if err := a.cfg.RequireToken(); err != nil {
				return err
			}
			_, err := mon.EnsureTokenSecret(ctx, a.cfg.Namespace, a.cfg.RoxAPIToken)
			return err
		}),
		steps.Action("Ensure the Central ServiceMonitor", func(ctx context.Context) error {
			_, err := mon.EnsureServiceMonitor(ctx, a.cfg.Namespace)
			return err
		}),
		steps.Condition("Wait for Central metrics", func(ctx context.Context) (bool, string, error) {
			api, err := a.centralAPI(ctx)
			if err != nil {
				return false, "", err
			}
			families, err := api.Metrics(ctx)
			if err != nil {
				return false, err.Error(), nil
			}
			if !central.HasFamilyPrefix(families, central.MetricsPrefix) {
				return false, fmt.Sprintf("no %s* families among %d", central.MetricsPrefix, len(families)), nil
			}
			for _, prefix := range central.CustomMetricPrefixes {
				if !central.HasFamilyPrefix(families, prefix) {
					a.log.Warning("No %s* metrics yet, they appear after the first gathering period", prefix)
				}
			}
			found := len(central.FamiliesWithPrefix(families, central.MetricsPrefix))
			a.log.Success("Central exposes %d %s* metric families", found, central.MetricsPrefix)
			return true, fmt.Sprintf("%d families", found), nil
		}, a.cfg.PollInterval, a.cfg.Timeout),
	}
}
