package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/certmanager"
	"github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/config"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/monitoring"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
	"github.com/ayaseen/rhacs-runner/pkg/version"
)

// requestTimeout bounds a single Central API request
const requestTimeout = 30 * time.Second

// app carries the state shared by the steps of one command run. Steps read
// the configuration when they run, so values discovered by an earlier step
// (endpoint, token, cluster name) are seen by later ones.
type app struct {
	v          *viper.Viper
	configFile string

	cfg    *config.Config
	log    *log.Logger
	out    io.Writer
	errOut io.Writer

	clients *kube.Clients
	waiter  *kube.Waiter

	// api is the token-authenticated Central client, reset when the token changes
	api *central.Client
}

// init loads the configuration and creates the logger
func (a *app) init(cmd *cobra.Command) error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", a.configFile, err)
		}
	}
	if err := config.BindEnv(a.v); err != nil {
		return err
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}

	logger, err := log.New(log.Config{
		Format:     log.Format(cfg.LogFormat),
		Verbose:    cfg.Verbose,
		Out:        cmd.OutOrStdout(),
		ErrOut:     cmd.ErrOrStderr(),
		Timestamps: true,
	})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	return nil
}

// connect creates the cluster clients once
func (a *app) connect() error {
	if a.clients == nil {
		clients, err := kube.NewClients(a.cfg.Kubeconfig)
		if err != nil {
			return err
		}
		a.clients = clients
	}
	if a.waiter == nil {
		a.waiter = kube.NewWaiter(a.cfg.PollInterval, a.cfg.Timeout, !a.cfg.NoProgress && !a.log.JSON())
	}
	return nil
}

// run connects to the cluster and runs the preflight step followed by the
// steps build returns.
func (a *app) run(ctx context.Context, build func() []steps.Step) error {
	if err := a.connect(); err != nil {
		return err
	}
	return steps.Run(ctx, a.log, append([]steps.Step{a.preflight()}, build()...))
}

func (a *app) preflight() steps.Step {
	return steps.Action("Check cluster access", func(ctx context.Context) error {
		res, err := a.clients.Preflight(ctx)
		if err != nil {
			return err
		}
		a.log.Info("Logged in as %s on OpenShift %s (Kubernetes %s)", res.User, res.OpenShiftVersion, res.ServerVersion)
		if !version.OpenShiftSupported(res.OpenShiftVersion) {
			a.log.Warning("OpenShift %s is older than %s, the operators may not install", res.OpenShiftVersion, version.MinimumOpenShiftVersion)
		}
		return nil
	})
}

func (a *app) installer() *olm.Installer {
	return olm.NewInstaller(a.clients, a.waiter, a.log)
}

func (a *app) rhacs() *rhacs.Manager {
	return rhacs.NewManager(a.clients, a.waiter, a.log, a.cfg.Namespace)
}

func (a *app) certManager() *certmanager.Manager {
	return certmanager.NewManager(a.clients, a.waiter, a.log)
}

func (a *app) scanner() *compliance.Scanner {
	return compliance.NewScanner(a.clients, a.waiter, a.log)
}

func (a *app) monitoring() *monitoring.Manager {
	return monitoring.NewManager(a.clients, a.log)
}

// endpoint returns the configured Central endpoint, discovering it from the
// central route when none is configured.
func (a *app) endpoint(ctx context.Context) (string, error) {
	if a.cfg.RoxEndpoint != "" {
		return a.cfg.RoxEndpoint, nil
	}
	endpoint, err := a.rhacs().CentralEndpoint(ctx)
	if err != nil {
		return "", err
	}
	a.cfg.RoxEndpoint = endpoint
	return endpoint, nil
}

// clusterName returns the configured secured cluster name, falling back to
// the infrastructure name.
func (a *app) clusterName(ctx context.Context) string {
	if a.cfg.ClusterName == "" {
		a.cfg.ClusterName = a.rhacs().ClusterName(ctx)
	}
	return a.cfg.ClusterName
}

// centralAPI returns a Central client authenticated with the API token
func (a *app) centralAPI(ctx context.Context) (*central.Client, error) {
	if a.api != nil {
		return a.api, nil
	}
	if _, err := a.endpoint(ctx); err != nil {
		return nil, err
	}
	if err := a.cfg.RequireToken(); err != nil {
		return nil, err
	}

	client, err := central.New(central.Options{
		Endpoint:           a.cfg.RoxEndpoint,
		Token:              a.cfg.RoxAPIToken,
		InsecureSkipVerify: true,
		Timeout:            requestTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.api = client
	return client, nil
}

// centralAdmin returns a Central client authenticated as the admin user
func (a *app) centralAdmin(ctx context.Context) (*central.Client, error) {
	endpoint, err := a.endpoint(ctx)
	if err != nil {
		return nil, err
	}
	if a.cfg.AdminPassword == "" {
		password, err := a.rhacs().AdminPassword(ctx)
		if err != nil {
			return nil, err
		}
		a.cfg.AdminPassword = password
	}

	return central.New(central.Options{
		Endpoint:           endpoint,
		Username:           central.DefaultUsername,
		Password:           a.cfg.AdminPassword,
		InsecureSkipVerify: true,
		Timeout:            requestTimeout,
	})
}

// setToken records a new API token for the following steps
func (a *app) setToken(token string) {
	a.cfg.RoxAPIToken = token
	a.api = nil
}

// isSecret reports whether an exported variable holds a credential
func isSecret(key string) bool {
	return key == config.EnvRoxAPIToken || key == config.EnvAdminPassword || strings.HasSuffix(key, "_TOKEN")
}
