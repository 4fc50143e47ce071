package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/config"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

// tokenName is the name generated API tokens are listed under in Central
const tokenName = "rhacs-runner"

func newSetupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Discover Central, generate an API token and persist the environment",
		Long: `Discovers the Central endpoint from its route, reads the admin password, generates an
API token and writes ROX_ENDPOINT, ROX_API_TOKEN, ADMIN_PASSWORD and NAMESPACE to the env file.
An existing token is kept while Central still accepts it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return setupSteps(a) })
		},
	}
}

func setupSteps(a *app) []steps.Step {
	var admin *central.Client

	return []steps.Step{
		steps.Action("Discover the Central endpoint", func(ctx context.Context) error {
			endpoint, err := a.endpoint(ctx)
			if err != nil {
				return err
			}
			a.log.Info("Central endpoint: %s", endpoint)
			return nil
		}),
		steps.Action("Read the admin password", func(ctx context.Context) error {
			var err error
			admin, err = a.centralAdmin(ctx)
			if err != nil {
				return err
			}
			a.log.Info("Admin password: %s", log.Mask(a.cfg.AdminPassword))
			return nil
		}),
		steps.Action("Wait for the Central API", func(ctx context.Context) error {
			return a.rhacs().WaitForCentralAPI(ctx, admin)
		}),
		steps.Action("Generate an API token", func(ctx context.Context) error {
			if a.cfg.RoxAPIToken != "" {
				if tokenAccepted(ctx, a) {
					a.log.Info("Keeping the existing API token %s", log.Mask(a.cfg.RoxAPIToken))
					return nil
				}
				a.log.Warning("The existing API token is rejected by Central, generating a new one")
			}

			token, err := rhacs.GenerateAPIToken(ctx, admin, a.log, tokenName, a.cfg.PollInterval)
			if err != nil {
				return err
			}
			a.setToken(token)
			a.log.Success("API token generated: %s", log.Mask(token))
			return nil
		}),
		steps.Action("Persist the environment", func(ctx context.Context) error {
			changed, err := config.UpsertEnvFile(a.cfg.EnvFile, a.cfg.Exports())
			if err != nil {
				return err
			}
			if changed {
				a.log.Success("Exports written to %s, run `source %s` to use them in this shell", a.cfg.EnvFile, a.cfg.EnvFile)
			} else {
				a.log.Info("%s is already up to date", a.cfg.EnvFile)
			}
			return nil
		}),
	}
}

// tokenAccepted reports whether Central authenticates the configured token
func tokenAccepted(ctx context.Context, a *app) bool {
	api, err := a.centralAPI(ctx)
	if err != nil {
		return false
	}
	status, err := api.AuthStatus(ctx)
	if err != nil {
		a.log.Debug("Token check failed: %v", err)
		a.api = nil
		return false
	}
	return !status.Anonymous
}
