package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayaseen/rhacs-runner/pkg/certmanager"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/steps"
)

func newCertManagerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert-manager",
		Short: "Manage cert-manager and the Central certificate",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install cert-manager and make Central serve a cert-manager certificate",
		Long: `Installs the cert-manager operator, creates a self-signed root issuer, a CA certificate
and the CA ClusterIssuer, issues a certificate for the Central route host and configures
Central to serve it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func() []steps.Step { return certManagerInstallSteps(a) })
		},
	})
	return cmd
}

func certManagerInstallSteps(a *app) []steps.Step {
	certs := a.certManager()
	m := a.rhacs()
	inst := a.installer()

	return []steps.Step{
		steps.Action("Install cert-manager", func(ctx context.Context) error {
			return certs.EnsureOperator(ctx, inst)
		}),
		steps.Action("Ensure ClusterIssuer "+a.cfg.IssuerName, func(ctx context.Context) error {
			return certs.EnsureIssuerChain(ctx, a.cfg.IssuerName)
		}),
		steps.Action("Issue the Central certificate", func(ctx context.Context) error {
			host, err := m.CentralHost(ctx)
			if err != nil {
				return err
			}
			dnsNames := []string{host, fmt.Sprintf("%s.%s.svc", rhacs.CentralService, m.Namespace())}
			cert := certmanager.ServingCertificate(m.Namespace(), rhacs.CentralCertificate, rhacs.CentralTLSSecret, a.cfg.IssuerName, dnsNames)
			_, err = certs.EnsureCertificate(ctx, cert)
			return err
		}),
		steps.Action("Wait for the Central certificate", func(ctx context.Context) error {
			return certs.WaitForCertificateReady(ctx, m.Namespace(), rhacs.CentralCertificate)
		}),
		steps.Action("Configure Central to serve the certificate", func(ctx context.Context) error {
			patched, err := m.PatchCentralTLS(ctx, rhacs.CentralTLSSecret)
			if err != nil {
				return err
			}
			if !patched {
				a.log.Info("Central already serves secret %s", rhacs.CentralTLSSecret)
				return nil
			}
			a.log.Success("Central now serves secret %s", rhacs.CentralTLSSecret)

			// the operator rolls Central out again with the new secret
			if err := m.WaitForCentral(ctx); err != nil {
				return err
			}
			admin, err := a.centralAdmin(ctx)
			if err != nil {
				return err
			}
			return m.WaitForCentralAPI(ctx, admin)
		}),
	}
}
