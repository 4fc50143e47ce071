/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-06

This file wires Central metrics into OpenShift monitoring. It:

- Enables user workload monitoring in cluster-monitoring-config
- Stores the Central API token for Prometheus in a Secret
- Ensures a ServiceMonitor scraping the Central /metrics endpoint
- Queries the Thanos querier to confirm Central metrics are collected
*/

package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	promconfig "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/manifests"
)

// Cluster monitoring objects
const (
	MonitoringNamespace = "openshift-monitoring"
	MonitoringConfigMap = "cluster-monitoring-config"
	MonitoringConfigKey = "config.yaml"
	ThanosQuerierRoute  = "thanos-querier"
)

// Objects created in the RHACS namespace
const (
	ServiceMonitorName = "central-metrics"
	TokenSecretName    = "central-metrics-token"
	TokenSecretKey     = "token"
)

// RoxCentralQuery counts the Central series Prometheus has scraped
const RoxCentralQuery = `count({__name__=~"rox_central_.+"})`

// Manager configures monitoring for Central
type Manager struct {
	clients *kube.Clients
	log     *log.Logger
}

// NewManager creates a Manager
func NewManager(clients *kube.Clients, logger *log.Logger) *Manager {
	return &Manager{clients: clients, log: logger}
}

// EnableUserWorkload sets enableUserWorkload: true in the cluster monitoring
// config, keeping every other setting.
func (m *Manager) EnableUserWorkload(ctx context.Context) (kube.OperationResult, error) {
	res, err := m.clients.MutateConfigMap(ctx, MonitoringNamespace, MonitoringConfigMap, func(data map[string]string) (bool, error) {
		updated, changed, err := SetUserWorkload(data[MonitoringConfigKey])
		if err != nil {
			return false, err
		}
		data[MonitoringConfigKey] = updated
		return changed, nil
	})
	if err != nil {
		return "", err
	}
	m.log.Info("User workload monitoring %s", res)
	return res, nil
}

// SetUserWorkload returns config.yaml with enableUserWorkload set to true
func SetUserWorkload(config string) (string, bool, error) {
	cfg := map[string]interface{}{}
	if config != "" {
		if err := yaml.Unmarshal([]byte(config), &cfg); err != nil {
			return "", false, fmt.Errorf("invalid %s in %s/%s: %w", MonitoringConfigKey, MonitoringNamespace, MonitoringConfigMap, err)
		}
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
	}

	if enabled, ok := cfg["enableUserWorkload"].(bool); ok && enabled {
		return config, false, nil
	}
	cfg["enableUserWorkload"] = true

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode monitoring config: %w", err)
	}
	return string(out), true, nil
}

// EnsureTokenSecret stores the token Prometheus uses to scrape Central
func (m *Manager) EnsureTokenSecret(ctx context.Context, namespace, token string) (kube.OperationResult, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: TokenSecretName, Namespace: namespace},
		Type:       corev1.SecretTypeOpaque,
		Data:       map[string][]byte{TokenSecretKey: []byte(token)},
	}
	res, err := m.clients.EnsureSecret(ctx, secret)
	if err != nil {
		return "", err
	}
	m.log.Info("Secret %s/%s %s", namespace, TokenSecretName, res)
	return res, nil
}

// EnsureServiceMonitor ensures the ServiceMonitor for Central
func (m *Manager) EnsureServiceMonitor(ctx context.Context, namespace string) (kube.OperationResult, error) {
	obj, err := manifests.RenderServiceMonitor(manifests.ServiceMonitor{
		Name:        ServiceMonitorName,
		Namespace:   namespace,
		TokenSecret: TokenSecretName,
		TokenKey:    TokenSecretKey,
	})
	if err != nil {
		return "", err
	}

	res, err := m.clients.EnsureUnstructured(ctx, kube.ServiceMonitorGVR, obj)
	if err != nil {
		return "", err
	}
	m.log.Info("ServiceMonitor %s/%s %s", namespace, ServiceMonitorName, res)
	return res, nil
}

// Querier runs instant PromQL queries
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...promv1.Option) (model.Value, promv1.Warnings, error)
}

// NewQuerier creates a Prometheus API client for address using a bearer token
func NewQuerier(address, token string, insecure bool) (promv1.API, error) {
	httpConfig := promconfig.HTTPClientConfig{
		TLSConfig:       promconfig.TLSConfig{InsecureSkipVerify: insecure},
		FollowRedirects: true,
	}
	if token != "" {
		httpConfig.Authorization = &promconfig.Authorization{Type: "Bearer", Credentials: promconfig.Secret(token)}
	}

	rt, err := promconfig.NewRoundTripperFromConfig(httpConfig, "thanos-querier")
	if err != nil {
		return nil, fmt.Errorf("failed to create querier transport: %w", err)
	}

	client, err := api.NewClient(api.Config{Address: address, RoundTripper: rt})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return promv1.NewAPI(client), nil
}

// ClusterQuerier returns a querier for the cluster's Thanos querier route,
// authenticated with the kubeconfig bearer token.
func (m *Manager) ClusterQuerier(ctx context.Context) (promv1.API, error) {
	route, err := m.clients.Route.RouteV1().Routes(MonitoringNamespace).Get(ctx, ThanosQuerierRoute, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get route %s/%s: %w", MonitoringNamespace, ThanosQuerierRoute, err)
	}

	token := ""
	if m.clients.RestConfig != nil {
		token = m.clients.RestConfig.BearerToken
	}
	if token == "" {
		return nil, fmt.Errorf("the kubeconfig has no bearer token; log in with `oc login` to query cluster metrics")
	}

	return NewQuerier("https://"+route.Spec.Host, token, true)
}

// CountSeries runs a count() query and returns its value, zero when the
// result is empty.
func CountSeries(ctx context.Context, q Querier, query string) (int, error) {
	value, _, err := q.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q failed: %w", query, err)
	}
	if value == nil {
		return 0, nil
	}

	vector, ok := value.(model.Vector)
	if !ok {
		return 0, fmt.Errorf("query %q returned %s, expected a vector", query, value.Type())
	}
	if len(vector) == 0 {
		return 0, nil
	}
	return int(vector[0].Value), nil
}
