/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-02

This application installs, configures and verifies Red Hat Advanced Cluster Security on OpenShift. It covers:

- Operators: the RHACS operator, cert-manager and the Compliance Operator, installed through OLM.
- Central and the secured cluster: the custom resources, the init bundle and the cluster health reported by Central.
- Certificates: a cert-manager issuer chain and the certificate Central serves on its route.
- Compliance and metrics: a scheduled CIS scan, Central custom metrics and user workload monitoring.

Every command is an ordered list of steps that stops at the first failure and can be run again safely.
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ayaseen/rhacs-runner/pkg/config"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "rhacs-runner",
		Short: "Installs and verifies Red Hat Advanced Cluster Security on OpenShift",
		Long: `This application installs the RHACS operator, Central and a secured cluster on OpenShift,
secures Central with a cert-manager certificate, schedules compliance scans, enables Central
metrics and verifies the result with a formatted report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.log.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.String(config.KeyNamespace, "", "Namespace of Central and the secured cluster (default stackrox)")
	flags.String(config.KeyRoxEndpoint, "", "Central API address as host[:port], discovered from the central route when empty")
	flags.String(config.KeyRoxAPIToken, "", "Central API token, generated by setup when empty")
	flags.String(config.KeyAdminPassword, "", "Central admin password, read from the central-htpasswd secret when empty")
	flags.String(config.KeyIssuerName, "", "cert-manager ClusterIssuer signing the Central certificate (default rhacs-selfsigned-ca)")
	flags.String(config.KeyClusterName, "", "Name the secured cluster registers under (default: the infrastructure name)")
	flags.String(config.KeyEnvFile, "", "File where setup persists exports (default ~/.bashrc)")
	flags.String(config.KeyKubeconfig, "", "Path to the kubeconfig file")
	flags.Duration(config.KeyTimeout, config.DefaultTimeout, "Upper bound for any single wait")
	flags.Duration(config.KeyPollInterval, config.DefaultPollInterval, "Interval between polls")
	flags.String(config.KeyLogFormat, "console", "Log format (console, json)")
	flags.BoolP(config.KeyVerbose, "v", false, "Enable debug output")
	flags.Bool(config.KeyNoProgress, false, "Disable spinners and progress bars")
	flags.StringVar(&a.configFile, "config", "", "Optional YAML config file")
	cobra.CheckErr(bindFlags(a.v, flags))

	root.AddCommand(
		newSetupCmd(a),
		newOperatorCmd(a),
		newCentralCmd(a),
		newCertManagerCmd(a),
		newSecuredClusterCmd(a),
		newComplianceCmd(a),
		newMetricsCmd(a),
		newVerifyCmd(a),
		newAllCmd(a),
		newEnvCmd(a),
		newVersionCmd(),
	)
	return root
}

// bindFlags makes every persistent flag, except --config, a viper key
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	// failed steps are already reported by the step runner
	var stepErr *steps.Error
	if !errors.As(err, &stepErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if ctx.Err() != nil {
		fmt.Fprintf(os.Stderr, "Interrupted after %s\n", time.Since(start).Round(time.Second))
	}
	stop()
	os.Exit(1)
}
