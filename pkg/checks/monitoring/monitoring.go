/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-09

This file implements the monitoring checks. It:

- Verifies Central exposes its own and the custom metrics on /metrics
- Verifies user workload monitoring and the Central ServiceMonitor are configured
- Queries cluster monitoring to confirm Prometheus collects Central metrics
*/

package monitoring

import (
	"context"
	"fmt"
	"strings"

	dto "github.com/prometheus/client_model/go"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/monitoring"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// MetricsAPI scrapes Central metrics
type MetricsAPI interface {
	Metrics(ctx context.Context) (map[string]*dto.MetricFamily, error)
}

// CentralMetricsCheck checks the Central /metrics endpoint
type CentralMetricsCheck struct {
	healthcheck.BaseCheck
	api MetricsAPI
}

// NewCentralMetricsCheck creates a new Central metrics check
func NewCentralMetricsCheck(api MetricsAPI) *CentralMetricsCheck {
	return &CentralMetricsCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"central-metrics",
			"Central Metrics",
			"Checks that Central exposes its metrics and the custom metrics",
			types.CategoryMonitoring,
		),
		api: api,
	}
}

// Run executes the check
func (c *CentralMetricsCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	if c.api == nil {
		result := healthcheck.Critical(c.ID(), "Central API credentials are not configured")
		result.AddRecommendation("Run `rhacs-runner setup`")
		return result, nil
	}

	families, err := c.api.Metrics(ctx)
	if err != nil {
		return healthcheck.Result{}, err
	}

	all := central.FamiliesWithPrefix(families, central.MetricsPrefix)
	if len(all) == 0 {
		return healthcheck.Critical(c.ID(), "/metrics exposes no %s metrics", central.MetricsPrefix), nil
	}

	var custom, missing []string
	for _, prefix := range central.CustomMetricPrefixes {
		names := central.FamiliesWithPrefix(families, prefix)
		if len(names) == 0 {
			missing = append(missing, prefix+"*")
			continue
		}
		custom = append(custom, names...)
	}

	if len(missing) > 0 {
		result := healthcheck.Warning(c.ID(), "Custom metrics missing: %s", strings.Join(missing, ", "))
		result.AddRecommendation("Run `rhacs-runner metrics configure`; custom metrics appear after the first gathering period")
		return result.WithDetail(strings.Join(all, "\n")), nil
	}

	result := healthcheck.OK(c.ID(), "%d metric families, %d custom series", len(all), central.SeriesCount(families, custom))
	return result.WithDetail(strings.Join(custom, "\n")), nil
}

// UserWorkloadCheck checks the monitoring configuration for Central
type UserWorkloadCheck struct {
	healthcheck.BaseCheck
	clients   *kube.Clients
	namespace string
}

// NewUserWorkloadCheck creates a new user workload monitoring check
func NewUserWorkloadCheck(clients *kube.Clients, namespace string) *UserWorkloadCheck {
	return &UserWorkloadCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"user-workload-monitoring",
			"User Workload Monitoring",
			"Checks that user workload monitoring is enabled and Central has a ServiceMonitor",
			types.CategoryMonitoring,
		),
		clients:   clients,
		namespace: namespace,
	}
}

// Run executes the check
func (c *UserWorkloadCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	cm, err := c.clients.Kube.CoreV1().ConfigMaps(monitoring.MonitoringNamespace).Get(ctx, monitoring.MonitoringConfigMap, metav1.GetOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return healthcheck.Result{}, fmt.Errorf("failed to get configmap %s: %w", monitoring.MonitoringConfigMap, err)
	}

	var cfg struct {
		EnableUserWorkload bool `json:"enableUserWorkload"`
	}
	if err == nil {
		if err := yaml.Unmarshal([]byte(cm.Data[monitoring.MonitoringConfigKey]), &cfg); err != nil {
			return healthcheck.Critical(c.ID(), "Invalid %s in %s: %v", monitoring.MonitoringConfigKey, monitoring.MonitoringConfigMap, err), nil
		}
	}
	if !cfg.EnableUserWorkload {
		result := healthcheck.Critical(c.ID(), "User workload monitoring is not enabled")
		result.AddRecommendation("Run `rhacs-runner metrics configure`")
		return result, nil
	}

	_, err = c.clients.Dynamic.Resource(kube.ServiceMonitorGVR).Namespace(c.namespace).Get(ctx, monitoring.ServiceMonitorName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		result := healthcheck.Critical(c.ID(), "ServiceMonitor %s/%s not found", c.namespace, monitoring.ServiceMonitorName)
		result.AddRecommendation("Run `rhacs-runner metrics configure`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, fmt.Errorf("failed to get servicemonitor: %w", err)
	}

	exists, err := c.clients.SecretExists(ctx, c.namespace, monitoring.TokenSecretName)
	if err != nil {
		return healthcheck.Result{}, err
	}
	if !exists {
		return healthcheck.Critical(c.ID(), "Secret %s/%s with the scrape token not found", c.namespace, monitoring.TokenSecretName), nil
	}

	return healthcheck.OK(c.ID(), "User workload monitoring is enabled and ServiceMonitor %s exists", monitoring.ServiceMonitorName), nil
}

// ScrapeCheck checks that Prometheus has collected Central metrics
type ScrapeCheck struct {
	healthcheck.BaseCheck
	querier monitoring.Querier
}

// NewScrapeCheck creates a new scrape check. querier may be nil when cluster
// monitoring cannot be queried.
func NewScrapeCheck(querier monitoring.Querier) *ScrapeCheck {
	return &ScrapeCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"prometheus-scrape",
			"Prometheus Scrape",
			"Checks that cluster monitoring collects Central metrics",
			types.CategoryMonitoring,
		),
		querier: querier,
	}
}

// Run executes the check
func (c *ScrapeCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	if c.querier == nil {
		return healthcheck.NewResult(c.ID(), types.StatusUnknown, "Cluster monitoring cannot be queried with the current credentials", types.ResultKeyAdvisory), nil
	}

	count, err := monitoring.CountSeries(ctx, c.querier, monitoring.RoxCentralQuery)
	if err != nil {
		return healthcheck.Result{}, err
	}
	if count == 0 {
		result := healthcheck.Warning(c.ID(), "Prometheus has no Central series yet")
		result.AddRecommendation("Check the ServiceMonitor target under Observe > Targets; the first scrape can take a few minutes")
		return result, nil
	}
	return healthcheck.OK(c.ID(), "Prometheus collects %d Central series", count), nil
}

// GetChecks returns the monitoring checks
func GetChecks(clients *kube.Clients, api MetricsAPI, querier monitoring.Querier, namespace string) []healthcheck.Check {
	return []healthcheck.Check{
		NewCentralMetricsCheck(api),
		NewUserWorkloadCheck(clients, namespace),
		NewScrapeCheck(querier),
	}
}
