package rhacs

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/manifests"
)

// Secrets an init bundle provides to the secured cluster services
var InitBundleSecrets = []string{"sensor-tls", "collector-tls", "admission-control-tls"}

// Secured cluster workloads
const (
	SensorDeployment           = "sensor"
	AdmissionControlDeployment = "admission-control"
	CollectorDaemonSet         = "collector"
)

// InitBundleGenerator creates init bundles in Central
type InitBundleGenerator interface {
	GenerateInitBundle(ctx context.Context, name string) (*central.InitBundle, error)
}

// ClusterGetter looks up secured clusters in Central
type ClusterGetter interface {
	ClusterByName(ctx context.Context, name string) (*central.Cluster, error)
}

// EnsureInitBundle generates an init bundle and applies its Secrets, unless
// every bundle Secret is already present. It reports whether a bundle was applied.
func (m *Manager) EnsureInitBundle(ctx context.Context, api InitBundleGenerator, clusterName string) (bool, error) {
	missing := 0
	for _, name := range InitBundleSecrets {
		exists, err := m.clients.SecretExists(ctx, m.namespace, name)
		if err != nil {
			return false, err
		}
		if !exists {
			missing++
		}
	}
	if missing == 0 {
		m.log.Info("Init bundle secrets already present in %s, skipping bundle generation", m.namespace)
		return false, nil
	}

	name := clusterName + "-init-bundle"
	bundle, err := m.generateInitBundle(ctx, api, name)
	if errors.Is(err, central.ErrAlreadyExists) {
		// the bundle exists in Central but its secrets were lost, so issue a new one
		name = fmt.Sprintf("%s-%d", name, time.Now().Unix())
		m.log.Warning("Init bundle %s-init-bundle exists but its secrets are missing, generating %s", clusterName, name)
		bundle, err = m.generateInitBundle(ctx, api, name)
	}
	if err != nil {
		return false, fmt.Errorf("failed to generate init bundle %s: %w", name, err)
	}

	applied, err := m.ApplyBundleSecrets(ctx, bundle.KubectlBundle)
	if err != nil {
		return false, err
	}
	m.log.Success("Init bundle %s applied (%d secrets)", name, applied)
	return true, nil
}

// generateInitBundle retries while Central is restarting, for example after
// its TLS secret changed.
func (m *Manager) generateInitBundle(ctx context.Context, api InitBundleGenerator, name string) (*central.InitBundle, error) {
	var bundle *central.InitBundle
	_, err := retryTransient(m.log, "Init bundle generation", m.waiter.Interval, func() error {
		b, err := api.GenerateInitBundle(ctx, name)
		if err != nil {
			return err
		}
		bundle = b
		return nil
	})
	return bundle, err
}

// ApplyBundleSecrets creates or updates every Secret in a kubectl bundle in the
// operand namespace and returns how many were applied.
func (m *Manager) ApplyBundleSecrets(ctx context.Context, bundle []byte) (int, error) {
	objs, err := manifests.DecodeAll(bundle)
	if err != nil {
		return 0, fmt.Errorf("invalid init bundle: %w", err)
	}

	applied := 0
	for _, obj := range objs {
		if obj.GetKind() != "Secret" {
			m.log.Warning("Skipping %s %s in init bundle", obj.GetKind(), obj.GetName())
			continue
		}

		secret := &corev1.Secret{}
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, secret); err != nil {
			return applied, fmt.Errorf("invalid secret %s in init bundle: %w", obj.GetName(), err)
		}
		secret.Namespace = m.namespace
		if len(secret.StringData) > 0 {
			if secret.Data == nil {
				secret.Data = map[string][]byte{}
			}
			for k, v := range secret.StringData {
				secret.Data[k] = []byte(v)
			}
			secret.StringData = nil
		}

		res, err := m.clients.EnsureSecret(ctx, secret)
		if err != nil {
			return applied, err
		}
		m.log.Info("Secret %s/%s %s", m.namespace, secret.Name, res)
		applied++
	}

	if applied == 0 {
		return 0, fmt.Errorf("init bundle contains no secrets")
	}
	return applied, nil
}

// EnsureSecuredCluster ensures the SecuredCluster resource pointing at the
// in-cluster Central service.
func (m *Manager) EnsureSecuredCluster(ctx context.Context, clusterName string) (kube.OperationResult, error) {
	obj, err := manifests.RenderSecuredCluster(manifests.SecuredCluster{
		Name:            SecuredClusterName,
		Namespace:       m.namespace,
		ClusterName:     clusterName,
		CentralEndpoint: fmt.Sprintf("%s.%s.svc:443", CentralService, m.namespace),
	})
	if err != nil {
		return "", err
	}

	res, err := m.clients.EnsureUnstructured(ctx, kube.SecuredClusterGVR, obj)
	if err != nil {
		return "", err
	}
	m.log.Info("SecuredCluster %s/%s %s", m.namespace, SecuredClusterName, res)
	return res, nil
}

// WaitForSecuredCluster waits for sensor, admission control and collector
func (m *Manager) WaitForSecuredCluster(ctx context.Context) error {
	for _, name := range []string{SensorDeployment, AdmissionControlDeployment} {
		if err := m.waiter.WaitForDeploymentAvailable(ctx, m.clients, m.namespace, name); err != nil {
			return err
		}
		m.log.Success("Deployment %s is available", name)
	}

	if err := m.waiter.WaitForDaemonSetReady(ctx, m.clients, m.namespace, CollectorDaemonSet); err != nil {
		return err
	}
	m.log.Success("DaemonSet %s is ready", CollectorDaemonSet)
	return nil
}

// WaitForClusterHealthy polls Central until the cluster reports HEALTHY. A
// cluster still DEGRADED when the wait ends only produces a warning.
func (m *Manager) WaitForClusterHealthy(ctx context.Context, api ClusterGetter, clusterName string) (*central.Cluster, error) {
	var last *central.Cluster

	err := m.waiter.Poll(ctx, fmt.Sprintf("cluster %s to report %s", clusterName, central.HealthHealthy), func(ctx context.Context) (bool, string, error) {
		cluster, err := api.ClusterByName(ctx, clusterName)
		var notFound *central.ClusterNotFoundError
		if errors.As(err, &notFound) {
			return false, "not registered", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}

		last = cluster
		health := cluster.HealthStatus
		state := fmt.Sprintf("overall %s (sensor %s, collector %s, admission control %s)",
			health.OverallHealthStatus, health.SensorHealthStatus, health.CollectorHealthStatus, health.AdmissionControlHealthStatus)
		return health.OverallHealthStatus == central.HealthHealthy, state, nil
	})

	if kube.IsTimeout(err) && last != nil && last.HealthStatus.OverallHealthStatus == central.HealthDegraded {
		m.log.Warning("Cluster %s is %s: %v", clusterName, central.HealthDegraded, err)
		return last, nil
	}
	if err != nil {
		return nil, err
	}

	m.log.Success("Cluster %s is %s", clusterName, central.HealthHealthy)
	return last, nil
}
