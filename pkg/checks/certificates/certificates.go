/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-08

This file implements the certificate checks. It:

- Verifies the CA ClusterIssuer is Ready
- Verifies the Central certificate is Ready and not close to expiry
- Verifies Central is configured with, and actually serves, the cert-manager certificate
*/

package certificates

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"time"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	cmmeta "github.com/cert-manager/cert-manager/pkg/apis/meta/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/ayaseen/rhacs-runner/pkg/certmanager"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// ExpiryWarning is how close to expiry a certificate produces a warning
const ExpiryWarning = 30 * 24 * time.Hour

// IssuerCheck checks the ClusterIssuer signing the Central certificate
type IssuerCheck struct {
	healthcheck.BaseCheck
	clients    *kube.Clients
	issuerName string
}

// NewIssuerCheck creates a new ClusterIssuer check
func NewIssuerCheck(clients *kube.Clients, issuerName string) *IssuerCheck {
	return &IssuerCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"cluster-issuer",
			"ClusterIssuer",
			"Checks that the ClusterIssuer signing the Central certificate is Ready",
			types.CategoryCertificates,
		),
		clients:    clients,
		issuerName: issuerName,
	}
}

// Run executes the check
func (c *IssuerCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	issuer, err := c.clients.CertManager.CertmanagerV1().ClusterIssuers().Get(ctx, c.issuerName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		result := healthcheck.Critical(c.ID(), "ClusterIssuer %s not found", c.issuerName)
		result.AddRecommendation("Run `rhacs-runner cert-manager install`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, fmt.Errorf("failed to get clusterissuer %s: %w", c.issuerName, err)
	}

	for _, cond := range issuer.Status.Conditions {
		if cond.Type != cmv1.IssuerConditionReady {
			continue
		}
		if cond.Status == cmmeta.ConditionTrue {
			return healthcheck.OK(c.ID(), "ClusterIssuer %s is Ready", c.issuerName), nil
		}
		return healthcheck.Critical(c.ID(), "ClusterIssuer %s is not Ready (%s): %s", c.issuerName, cond.Reason, cond.Message), nil
	}
	return healthcheck.Warning(c.ID(), "ClusterIssuer %s has not reported readiness", c.issuerName), nil
}

// CertificateReader returns the state of a Certificate
type CertificateReader interface {
	CertificateStatus(ctx context.Context, namespace, name string) (*certmanager.CertificateStatus, error)
}

// CertificateCheck checks the Central Certificate
type CertificateCheck struct {
	healthcheck.BaseCheck
	reader    CertificateReader
	namespace string
	now       func() time.Time
}

// NewCertificateCheck creates a new Central certificate check
func NewCertificateCheck(reader CertificateReader, namespace string) *CertificateCheck {
	return &CertificateCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"central-certificate",
			"Central Certificate",
			"Checks that the Central certificate is Ready and valid for more than 30 days",
			types.CategoryCertificates,
		),
		reader:    reader,
		namespace: namespace,
		now:       time.Now,
	}
}

// Run executes the check
func (c *CertificateCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	status, err := c.reader.CertificateStatus(ctx, c.namespace, rhacs.CentralCertificate)
	if apierrors.IsNotFound(err) {
		result := healthcheck.Critical(c.ID(), "Certificate %s/%s not found", c.namespace, rhacs.CentralCertificate)
		result.AddRecommendation("Run `rhacs-runner cert-manager install`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, err
	}

	if !status.Ready {
		result := healthcheck.Critical(c.ID(), "Certificate %s is not Ready (%s): %s", rhacs.CentralCertificate, status.Reason, status.Message)
		result.AddRecommendation(fmt.Sprintf("Inspect the request with `oc describe certificate %s -n %s`", rhacs.CentralCertificate, c.namespace))
		return result, nil
	}

	if status.NotAfter == nil {
		return healthcheck.OK(c.ID(), "Certificate %s is Ready", rhacs.CentralCertificate), nil
	}

	remaining := status.NotAfter.Sub(c.now())
	if remaining < ExpiryWarning {
		result := healthcheck.Warning(c.ID(), "Certificate %s expires on %s", rhacs.CentralCertificate, status.NotAfter.Format(time.RFC3339))
		result.AddRecommendation("Check that cert-manager renews the certificate")
		return result, nil
	}

	result := healthcheck.OK(c.ID(), "Certificate %s is Ready until %s", rhacs.CentralCertificate, status.NotAfter.Format("2006-01-02"))
	result.AddMetadata("not_after", status.NotAfter.Format(time.RFC3339))
	return result, nil
}

// DialFunc returns the certificate chain served at addr
type DialFunc func(ctx context.Context, addr string) ([]*x509.Certificate, error)

// ServedCertificates connects to addr and returns the certificates it presents
func ServedCertificates(ctx context.Context, addr string) ([]*x509.Certificate, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}

	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host, InsecureSkipVerify: true}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	return conn.(*tls.Conn).ConnectionState().PeerCertificates, nil
}

// CentralTLSCheck checks that Central serves the cert-manager certificate
type CentralTLSCheck struct {
	healthcheck.BaseCheck
	clients   *kube.Clients
	rhacs     *rhacs.Manager
	namespace string
	dial      DialFunc
}

// NewCentralTLSCheck creates a new Central TLS check. dial defaults to
// ServedCertificates.
func NewCentralTLSCheck(clients *kube.Clients, manager *rhacs.Manager, dial DialFunc) *CentralTLSCheck {
	if dial == nil {
		dial = ServedCertificates
	}
	return &CentralTLSCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"central-tls",
			"Central TLS",
			"Checks that Central serves the certificate issued by cert-manager",
			types.CategoryCertificates,
		),
		clients:   clients,
		rhacs:     manager,
		namespace: manager.Namespace(),
		dial:      dial,
	}
}

// Run executes the check
func (c *CentralTLSCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	configured, err := c.rhacs.CentralTLSSecretName(ctx)
	if apierrors.IsNotFound(err) {
		return healthcheck.Critical(c.ID(), "Central %s/%s not found", c.namespace, rhacs.CentralName), nil
	}
	if err != nil {
		return healthcheck.Result{}, err
	}
	if configured != rhacs.CentralTLSSecret {
		result := healthcheck.Critical(c.ID(), "Central is not configured with secret %s", rhacs.CentralTLSSecret)
		result.AddRecommendation("Run `rhacs-runner cert-manager install` to issue the certificate and patch Central")
		if configured != "" {
			result.AddMetadata("configured_secret", configured)
		}
		return result, nil
	}

	crt, err := c.clients.SecretValue(ctx, c.namespace, rhacs.CentralTLSSecret, "tls.crt")
	if err != nil {
		return healthcheck.Critical(c.ID(), "Cannot read the issued certificate: %v", err), nil
	}
	block, _ := pem.Decode([]byte(crt))
	if block == nil {
		return healthcheck.Critical(c.ID(), "Secret %s holds no PEM certificate", rhacs.CentralTLSSecret), nil
	}

	endpoint, err := c.rhacs.CentralEndpoint(ctx)
	if err != nil {
		return healthcheck.Critical(c.ID(), "%v", err), nil
	}

	chain, err := c.dial(ctx, endpoint)
	if err != nil {
		return healthcheck.Warning(c.ID(), "Cannot inspect the certificate served at %s: %v", endpoint, err), nil
	}
	if len(chain) == 0 {
		return healthcheck.Critical(c.ID(), "%s presented no certificate", endpoint), nil
	}

	leaf := chain[0]
	if !bytes.Equal(leaf.Raw, block.Bytes) {
		result := healthcheck.Critical(c.ID(), "%s serves %q issued by %q, not the cert-manager certificate", endpoint, leaf.Subject.CommonName, leaf.Issuer.CommonName)
		result.AddRecommendation("The route may terminate TLS itself; Central reloads the default certificate after a pod restart")
		return result, nil
	}

	result := healthcheck.OK(c.ID(), "Central serves the cert-manager certificate issued by %s", leaf.Issuer.CommonName)
	result.AddMetadata("serial", leaf.SerialNumber.String())
	return result, nil
}

// GetChecks returns the certificate checks
func GetChecks(clients *kube.Clients, manager *rhacs.Manager, certs *certmanager.Manager, issuerName string) []healthcheck.Check {
	return []healthcheck.Check{
		NewIssuerCheck(clients, issuerName),
		NewCertificateCheck(certs, manager.Namespace()),
		NewCentralTLSCheck(clients, manager, nil),
	}
}
