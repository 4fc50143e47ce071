/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-05

This file configures cert-manager to issue the Central TLS certificate. It:

- Installs the cert-manager Operator for Red Hat OpenShift and waits for its operands
- Builds a self-signed root, a CA certificate and a CA ClusterIssuer
- Requests a certificate for the Central route and waits for it to be Ready
*/

package certmanager

import (
	"context"
	"fmt"
	"time"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	cmmeta "github.com/cert-manager/cert-manager/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"

	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
)

// Namespace is where the operator runs cert-manager and keeps ClusterIssuer secrets
const Namespace = "cert-manager"

// Issuer chain object names
const (
	RootIssuerName = "rhacs-selfsigned-root"
	RootCAName     = "rhacs-root-ca"
)

// Operands are the cert-manager Deployments the operator creates
var Operands = []string{"cert-manager", "cert-manager-webhook", "cert-manager-cainjector"}

// Manager drives cert-manager resources
type Manager struct {
	clients *kube.Clients
	waiter  *kube.Waiter
	log     *log.Logger
}

// NewManager creates a Manager
func NewManager(clients *kube.Clients, waiter *kube.Waiter, logger *log.Logger) *Manager {
	return &Manager{clients: clients, waiter: waiter, log: logger}
}

// EnsureOperator installs the operator and waits for cert-manager itself
func (m *Manager) EnsureOperator(ctx context.Context, installer *olm.Installer) error {
	if _, err := installer.Install(ctx, olm.CertManagerOperator); err != nil {
		return err
	}
	return m.WaitForOperands(ctx)
}

// WaitForOperands waits for the cert-manager Deployments
func (m *Manager) WaitForOperands(ctx context.Context) error {
	for _, name := range Operands {
		if err := m.waiter.WaitForDeploymentAvailable(ctx, m.clients, Namespace, name); err != nil {
			return err
		}
	}
	m.log.Success("cert-manager is running")
	return nil
}

// EnsureIssuerChain ensures a self-signed root issuer, a CA certificate signed
// by it and the CA ClusterIssuer named issuerName, then waits until it is Ready.
func (m *Manager) EnsureIssuerChain(ctx context.Context, issuerName string) error {
	root := &cmv1.ClusterIssuer{
		ObjectMeta: metav1.ObjectMeta{Name: RootIssuerName},
		Spec: cmv1.IssuerSpec{
			IssuerConfig: cmv1.IssuerConfig{SelfSigned: &cmv1.SelfSignedIssuer{}},
		},
	}
	if _, err := m.EnsureClusterIssuer(ctx, root); err != nil {
		return err
	}

	ca := &cmv1.Certificate{
		ObjectMeta: metav1.ObjectMeta{Name: RootCAName, Namespace: Namespace},
		Spec: cmv1.CertificateSpec{
			IsCA:       true,
			CommonName: RootCAName,
			SecretName: RootCAName,
			Duration:   &metav1.Duration{Duration: 10 * 365 * 24 * time.Hour},
			PrivateKey: &cmv1.CertificatePrivateKey{
				Algorithm: cmv1.ECDSAKeyAlgorithm,
				Size:      256,
			},
			IssuerRef: cmmeta.ObjectReference{Name: RootIssuerName, Kind: cmv1.ClusterIssuerKind, Group: "cert-manager.io"},
		},
	}
	if _, err := m.EnsureCertificate(ctx, ca); err != nil {
		return err
	}
	if err := m.WaitForCertificateReady(ctx, Namespace, RootCAName); err != nil {
		return err
	}

	issuer := &cmv1.ClusterIssuer{
		ObjectMeta: metav1.ObjectMeta{Name: issuerName},
		Spec: cmv1.IssuerSpec{
			IssuerConfig: cmv1.IssuerConfig{CA: &cmv1.CAIssuer{SecretName: RootCAName}},
		},
	}
	if _, err := m.EnsureClusterIssuer(ctx, issuer); err != nil {
		return err
	}
	return m.WaitForClusterIssuerReady(ctx, issuerName)
}

// EnsureClusterIssuer creates the ClusterIssuer or updates a differing spec
func (m *Manager) EnsureClusterIssuer(ctx context.Context, desired *cmv1.ClusterIssuer) (kube.OperationResult, error) {
	issuers := m.clients.CertManager.CertmanagerV1().ClusterIssuers()

	existing, err := issuers.Get(ctx, desired.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := issuers.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return "", fmt.Errorf("failed to create clusterissuer %s: %w", desired.Name, err)
		}
		m.log.Info("ClusterIssuer %s created", desired.Name)
		return kube.ResultCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get clusterissuer %s: %w", desired.Name, err)
	}
	if equality.Semantic.DeepEqual(existing.Spec, desired.Spec) {
		return kube.ResultUnchanged, nil
	}

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := issuers.Get(ctx, desired.Name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		existing.Spec = desired.Spec
		_, err = issuers.Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to update clusterissuer %s: %w", desired.Name, err)
	}
	m.log.Info("ClusterIssuer %s updated", desired.Name)
	return kube.ResultUpdated, nil
}

// EnsureCertificate creates the Certificate or updates a differing spec
func (m *Manager) EnsureCertificate(ctx context.Context, desired *cmv1.Certificate) (kube.OperationResult, error) {
	certs := m.clients.CertManager.CertmanagerV1().Certificates(desired.Namespace)

	existing, err := certs.Get(ctx, desired.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := certs.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return "", fmt.Errorf("failed to create certificate %s/%s: %w", desired.Namespace, desired.Name, err)
		}
		m.log.Info("Certificate %s/%s created", desired.Namespace, desired.Name)
		return kube.ResultCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get certificate %s/%s: %w", desired.Namespace, desired.Name, err)
	}
	if equality.Semantic.DeepEqual(existing.Spec, desired.Spec) {
		return kube.ResultUnchanged, nil
	}

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := certs.Get(ctx, desired.Name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		existing.Spec = desired.Spec
		_, err = certs.Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to update certificate %s/%s: %w", desired.Namespace, desired.Name, err)
	}
	m.log.Info("Certificate %s/%s updated", desired.Namespace, desired.Name)
	return kube.ResultUpdated, nil
}

// ServingCertificate builds the Certificate for a TLS endpoint
func ServingCertificate(namespace, name, secretName, issuerName string, dnsNames []string) *cmv1.Certificate {
	return &cmv1.Certificate{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: cmv1.CertificateSpec{
			CommonName: dnsNames[0],
			DNSNames:   dnsNames,
			SecretName: secretName,
			Usages:     []cmv1.KeyUsage{cmv1.UsageServerAuth, cmv1.UsageDigitalSignature, cmv1.UsageKeyEncipherment},
			PrivateKey: &cmv1.CertificatePrivateKey{
				Algorithm:      cmv1.RSAKeyAlgorithm,
				Size:           2048,
				RotationPolicy: cmv1.RotationPolicyAlways,
			},
			IssuerRef: cmmeta.ObjectReference{Name: issuerName, Kind: cmv1.ClusterIssuerKind, Group: "cert-manager.io"},
		},
	}
}

// CertificateStatus summarizes a Certificate
type CertificateStatus struct {
	Ready    bool
	Reason   string
	Message  string
	NotAfter *time.Time
}

// CertificateStatus returns the Ready condition and expiry of a Certificate
func (m *Manager) CertificateStatus(ctx context.Context, namespace, name string) (*CertificateStatus, error) {
	cert, err := m.clients.CertManager.CertmanagerV1().Certificates(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate %s/%s: %w", namespace, name, err)
	}

	status := &CertificateStatus{Reason: "NotReported"}
	for _, cond := range cert.Status.Conditions {
		if cond.Type == cmv1.CertificateConditionReady {
			status.Ready = cond.Status == cmmeta.ConditionTrue
			status.Reason = cond.Reason
			status.Message = cond.Message
		}
	}
	if cert.Status.NotAfter != nil {
		t := cert.Status.NotAfter.Time
		status.NotAfter = &t
	}
	return status, nil
}

// WaitForCertificateReady waits until the Certificate is Ready=True
func (m *Manager) WaitForCertificateReady(ctx context.Context, namespace, name string) error {
	err := m.waiter.Poll(ctx, fmt.Sprintf("certificate %s/%s", namespace, name), func(ctx context.Context) (bool, string, error) {
		status, err := m.CertificateStatus(ctx, namespace, name)
		if err != nil {
			return false, err.Error(), nil
		}
		state := "Ready=" + fmt.Sprint(status.Ready) + " (" + status.Reason + ")"
		if status.Message != "" {
			state += ": " + status.Message
		}
		return status.Ready, state, nil
	})
	if err != nil {
		return err
	}
	m.log.Success("Certificate %s/%s is ready", namespace, name)
	return nil
}

// WaitForClusterIssuerReady waits until the ClusterIssuer is Ready=True
func (m *Manager) WaitForClusterIssuerReady(ctx context.Context, name string) error {
	err := m.waiter.Poll(ctx, "clusterissuer "+name, func(ctx context.Context) (bool, string, error) {
		issuer, err := m.clients.CertManager.CertmanagerV1().ClusterIssuers().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, err.Error(), nil
		}
		for _, cond := range issuer.Status.Conditions {
			if cond.Type == cmv1.IssuerConditionReady {
				state := fmt.Sprintf("Ready=%s (%s): %s", cond.Status, cond.Reason, cond.Message)
				return cond.Status == cmmeta.ConditionTrue, state, nil
			}
		}
		return false, "Ready not reported", nil
	})
	if err != nil {
		return err
	}
	m.log.Success("ClusterIssuer %s is ready", name)
	return nil
}
