/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-04

This file manages the RHACS Central installation. It:

- Ensures the operand namespace and the Central custom resource
- Waits for the operator to deploy Central and for the central Deployment
- Discovers the Central endpoint from its Route
- Reads the generated admin password
- Points Central at a cert-manager issued TLS secret
*/

package rhacs

import (
	"context"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/manifests"
)

// Names of the objects the RHACS operator manages
const (
	CentralName        = "stackrox-central-services"
	SecuredClusterName = "stackrox-secured-cluster-services"

	CentralDeployment  = "central"
	CentralRoute       = "central"
	CentralService     = "central"
	AdminSecret        = "central-htpasswd"
	AdminPasswordKey   = "password"
	DefaultClusterName = "local-cluster"

	// CentralCertificate is the cert-manager Certificate for the Central
	// route, stored in CentralTLSSecret.
	CentralCertificate = "central-tls"
	CentralTLSSecret   = "central-default-tls"
)

// Manager installs and inspects RHACS in one namespace
type Manager struct {
	clients   *kube.Clients
	waiter    *kube.Waiter
	log       *log.Logger
	namespace string
}

// NewManager creates a Manager for the operand namespace
func NewManager(clients *kube.Clients, waiter *kube.Waiter, logger *log.Logger, namespace string) *Manager {
	return &Manager{clients: clients, waiter: waiter, log: logger, namespace: namespace}
}

// Namespace returns the operand namespace
func (m *Manager) Namespace() string {
	return m.namespace
}

// EnsureCentral ensures the namespace and the Central custom resource
func (m *Manager) EnsureCentral(ctx context.Context) (kube.OperationResult, error) {
	res, err := m.clients.EnsureNamespace(ctx, m.namespace, nil)
	if err != nil {
		return "", err
	}
	m.log.Info("Namespace %s %s", m.namespace, res)

	obj, err := manifests.RenderCentral(manifests.Central{Name: CentralName, Namespace: m.namespace})
	if err != nil {
		return "", err
	}

	res, err = m.clients.EnsureUnstructured(ctx, kube.CentralGVR, obj)
	if err != nil {
		return "", err
	}
	m.log.Info("Central %s/%s %s", m.namespace, CentralName, res)
	return res, nil
}

// WaitForCentral waits for Deployed=True on the Central resource and for the
// central Deployment. ReleaseFailed or Irreconcilable end the wait.
func (m *Manager) WaitForCentral(ctx context.Context) error {
	what := fmt.Sprintf("central %s/%s", m.namespace, CentralName)
	err := m.waiter.Poll(ctx, what, func(ctx context.Context) (bool, string, error) {
		obj, err := m.clients.Dynamic.Resource(kube.CentralGVR).Namespace(m.namespace).Get(ctx, CentralName, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, "not found", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}

		for _, bad := range []string{"ReleaseFailed", "Irreconcilable"} {
			if cond, ok := kube.FindCondition(obj, bad); ok && cond.Status == "True" {
				return false, cond.String(), fmt.Errorf("central %s is %s: %s", CentralName, bad, cond.Message)
			}
		}

		cond, ok := kube.FindCondition(obj, "Deployed")
		if !ok {
			return false, "Deployed not reported", nil
		}
		return cond.Status == "True", cond.String(), nil
	})
	if err != nil {
		return err
	}

	if err := m.waiter.WaitForDeploymentAvailable(ctx, m.clients, m.namespace, CentralDeployment); err != nil {
		return err
	}
	m.log.Success("Central is available")
	return nil
}

// Pinger checks that Central answers API requests
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitForCentralAPI polls Central until it answers. The timeout error carries
// the last failure.
func (m *Manager) WaitForCentralAPI(ctx context.Context, api Pinger) error {
	err := m.waiter.Poll(ctx, "the Central API", func(ctx context.Context) (bool, string, error) {
		if err := api.Ping(ctx); err != nil {
			return false, err.Error(), nil
		}
		return true, "answering", nil
	})
	if err != nil {
		return err
	}
	m.log.Success("The Central API is answering")
	return nil
}

// CentralEndpoint returns host:443 of the central Route
func (m *Manager) CentralEndpoint(ctx context.Context) (string, error) {
	route, err := m.clients.Route.RouteV1().Routes(m.namespace).Get(ctx, CentralRoute, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", fmt.Errorf("route %s/%s not found; run `rhacs-runner central install` first", m.namespace, CentralRoute)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get route %s/%s: %w", m.namespace, CentralRoute, err)
	}

	host := route.Spec.Host
	if host == "" {
		for _, ingress := range route.Status.Ingress {
			if ingress.Host != "" {
				host = ingress.Host
				break
			}
		}
	}
	if host == "" {
		return "", fmt.Errorf("route %s/%s has no host yet", m.namespace, CentralRoute)
	}
	return host + ":443", nil
}

// CentralHost returns the route host without port
func (m *Manager) CentralHost(ctx context.Context) (string, error) {
	endpoint, err := m.CentralEndpoint(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(endpoint, ":443"), nil
}

// AdminPassword reads the password the operator generated for the admin user
func (m *Manager) AdminPassword(ctx context.Context) (string, error) {
	password, err := m.clients.SecretValue(ctx, m.namespace, AdminSecret, AdminPasswordKey)
	if err != nil {
		return "", fmt.Errorf("cannot read the central admin password: %w", err)
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return "", fmt.Errorf("secret %s/%s has an empty password", m.namespace, AdminSecret)
	}
	return password, nil
}

// CentralTLSSecretName returns the secret Central is configured to serve, or
// "" when it uses its own certificate.
func (m *Manager) CentralTLSSecretName(ctx context.Context) (string, error) {
	obj, err := m.clients.Dynamic.Resource(kube.CentralGVR).Namespace(m.namespace).Get(ctx, CentralName, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get central %s/%s: %w", m.namespace, CentralName, err)
	}
	name, _, _ := unstructured.NestedString(obj.Object, "spec", "central", "defaultTLSSecret", "name")
	return name, nil
}

// PatchCentralTLS makes Central serve the certificate in secretName
func (m *Manager) PatchCentralTLS(ctx context.Context, secretName string) (bool, error) {
	current, err := m.CentralTLSSecretName(ctx)
	if err != nil {
		return false, err
	}
	if current == secretName {
		return false, nil
	}

	patch := map[string]interface{}{
		"spec": map[string]interface{}{
			"central": map[string]interface{}{
				"defaultTLSSecret": map[string]interface{}{"name": secretName},
			},
		},
	}
	if err := m.clients.MergePatch(ctx, kube.CentralGVR, m.namespace, CentralName, patch); err != nil {
		return false, err
	}
	return true, nil
}

// ClusterName returns the infrastructure name of the cluster, which is also
// the name the secured cluster registers with.
func (m *Manager) ClusterName(ctx context.Context) string {
	infra, err := m.clients.Config.ConfigV1().Infrastructures().Get(ctx, "cluster", metav1.GetOptions{})
	if err != nil || infra.Status.InfrastructureName == "" {
		m.log.Debug("Using cluster name %s: infrastructure name unavailable", DefaultClusterName)
		return DefaultClusterName
	}
	return infra.Status.InfrastructureName
}
