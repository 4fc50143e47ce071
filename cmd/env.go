package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/config"
	"github.com/ayaseen/rhacs-runner/pkg/log"
)

func newEnvCmd(a *app) *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Print the resolved environment as shell exports",
		Long: `Prints the configuration resolved from flags, the environment and the env file as
export lines. Credentials are masked unless --show-secrets is given, so the output can be
evaluated with eval "$(rhacs-runner env --show-secrets)".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exports := a.cfg.Exports()
			exports[config.EnvIssuerName] = a.cfg.IssuerName
			if a.cfg.ClusterName != "" {
				exports[config.EnvClusterName] = a.cfg.ClusterName
			}

			keys := make([]string, 0, len(exports))
			for k := range exports {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				value := exports[k]
				if isSecret(k) && !showSecrets {
					value = log.Mask(value)
				}
				fmt.Fprintln(a.out, config.FormatExport(k, value))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print credentials in clear text")
	return cmd
}
