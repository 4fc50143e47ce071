package cmd

import (
	"context"

	"github.com/spf13/cobra"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newOperatorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage the RHACS operator",
	}

	var channel string
	install := &cobra.Command{
		Use:   "install",
		Short: "Install or upgrade the RHACS operator through OLM",
		Long: `Ensures the rhacs-operator namespace, OperatorGroup and Subscription and waits for the
ClusterServiceVersion to succeed. With --channel an existing subscription is moved to the
channel and the command waits for a newer CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return operatorInstallSteps(a, channel) })
		},
	}
	install.Flags().StringVar(&channel, "channel", "", "Subscription channel (default: the current channel, or stable)")

	cmd.AddCommand(install)
	return cmd
}

func operatorInstallSteps(a *app, channel string) []steps.Step {
	inst := a.installer()
	op := olm.RHACSOperator.WithChannel(channel)
	upgrade := false

	return []steps.Step{
		steps.Action("Subscribe to "+op.Package, func(ctx context.Context) error {
			sub, err := inst.Subscription(ctx, op)
			switch {
			case apierrors.IsNotFound(err):
			case err != nil:
				return err
			default:
				current, _, _ := unstructured.NestedString(sub.Object, "spec", "channel")
				if channel == "" {
					// keep whatever channel the cluster is on
					op = op.WithChannel(current)
				} else if current != op.Channel {
					upgrade = true
					return nil
				}
			}
			_, err = inst.EnsureSubscription(ctx, op)
			return err
		}),
		steps.Action("Wait for the "+op.Package+" CSV", func(ctx context.Context) error {
			var (
				csv string
				err error
			)
			if upgrade {
				csv, err = inst.Upgrade(ctx, op)
			} else {
				csv, err = inst.WaitForInstalledCSV(ctx, op, "")
			}
			if err != nil {
				return err
			}
			if v, err := olm.CSVVersion(csv); err == nil {
				a.log.Info("RHACS operator version %s on channel %s", v, op.Channel)
			}
			return nil
		}),
	}
}
