//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ayaseen/rhacs-runner/pkg/certmanager"
	"github.com/ayaseen/rhacs-runner/pkg/checks"
	"github.com/ayaseen/rhacs-runner/pkg/compliance"
	"github.com/ayaseen/rhacs-runner/pkg/config"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

var _ = Describe("Installed RHACS", Ordered, func() {
	var (
		ctx       context.Context
		installer *olm.Installer
		manager   *rhacs.Manager
	)

	BeforeAll(func() {
		ctx = context.Background()
		installer = olm.NewInstaller(clients, waiter, logger)
		manager = rhacs.NewManager(clients, waiter, logger, namespace)
	})

	DescribeTable("operator CSV has succeeded",
		func(op olm.Operator) {
			csv, err := installer.InstalledCSV(ctx, op)
			Expect(err).NotTo(HaveOccurred())
			Expect(csv).NotTo(BeEmpty(), "subscription %s has no installed CSV", op.Package)

			phase, message, err := installer.CSVPhase(ctx, op.Namespace, csv)
			Expect(err).NotTo(HaveOccurred())
			Expect(phase).To(Equal(olm.PhaseSucceeded), message)
		},
		Entry("rhacs-operator", olm.RHACSOperator),
		Entry("cert-manager", olm.CertManagerOperator),
		Entry("compliance-operator", olm.ComplianceOperator),
	)

	It("runs Central and the secured cluster services", func() {
		By("waiting for Central")
		Expect(manager.WaitForCentral(ctx)).To(Succeed())

		By("waiting for sensor, admission control and collector")
		Expect(manager.WaitForSecuredCluster(ctx)).To(Succeed())
	})

	It("serves a cert-manager issued certificate", func() {
		cm := certmanager.NewManager(clients, waiter, logger)
		status, err := cm.CertificateStatus(ctx, namespace, rhacs.CentralCertificate)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Ready).To(BeTrue(), "%s: %s", status.Reason, status.Message)

		secret, err := manager.CentralTLSSecretName(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(secret).To(Equal(rhacs.CentralTLSSecret))
	})

	It("reports the cluster HEALTHY in Central", func() {
		if roxAPI == nil {
			Skip(config.EnvRoxEndpoint + " and " + config.EnvRoxAPIToken + " are required")
		}
		cluster, err := manager.WaitForClusterHealthy(ctx, roxAPI, getEnv(config.EnvClusterName, manager.ClusterName(ctx)))
		Expect(err).NotTo(HaveOccurred())
		Expect(cluster.ID).NotTo(BeEmpty())
	})

	It("passes verification without critical results", func() {
		if roxAPI == nil {
			Skip(config.EnvRoxEndpoint + " and " + config.EnvRoxAPIToken + " are required")
		}
		runner := healthcheck.NewRunner(healthcheck.Config{SkipProgressBar: true, Out: GinkgoWriter})
		runner.AddChecks(checks.GetAllChecks(checks.Dependencies{
			Clients:     clients,
			Installer:   installer,
			RHACS:       manager,
			CertManager: certmanager.NewManager(clients, waiter, logger),
			Scanner:     compliance.NewScanner(clients, waiter, logger),
			Central:     roxAPI,
			Endpoint:    os.Getenv(config.EnvRoxEndpoint),
			IssuerName:  getEnv(config.EnvIssuerName, config.DefaultIssuerName),
			ClusterName: getEnv(config.EnvClusterName, manager.ClusterName(ctx)),
			ScanName:    compliance.DefaultScanName,
		}))
		Expect(runner.Run(ctx)).To(Succeed())

		for id, result := range runner.GetResults() {
			Expect(result.Status).NotTo(Equal(types.StatusCritical), "%s: %s", id, result.Message)
		}
	})
})
