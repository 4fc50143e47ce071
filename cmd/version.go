package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// skips the configuration and logger set up by the root command
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rhacs-runner %s (%s)\n", version.Version, version.Commit)
		},
	}
}
