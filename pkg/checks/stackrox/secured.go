package stackrox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// SecuredClusterCheck checks the sensor, admission control and collector workloads
type SecuredClusterCheck struct {
	healthcheck.BaseCheck
	clients   *kube.Clients
	namespace string
}

// NewSecuredClusterCheck creates a new secured cluster workload check
func NewSecuredClusterCheck(clients *kube.Clients, namespace string) *SecuredClusterCheck {
	return &SecuredClusterCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"secured-cluster-workloads",
			"Secured Cluster Workloads",
			"Checks that sensor, admission control and collector are running",
			types.CategorySecuredCluster,
		),
		clients:   clients,
		namespace: namespace,
	}
}

// Run executes the check
func (c *SecuredClusterCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	var problems, states []string

	for _, name := range []string{rhacs.SensorDeployment, rhacs.AdmissionControlDeployment} {
		deploy, err := c.clients.Kube.AppsV1().Deployments(c.namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			problems = append(problems, fmt.Sprintf("deployment %s not found", name))
			continue
		}
		if err != nil {
			return healthcheck.Result{}, fmt.Errorf("failed to get deployment %s: %w", name, err)
		}
		available, state, err := kube.DeploymentAvailable(deploy)
		states = append(states, fmt.Sprintf("deployment %s: %s", name, state))
		if err != nil || !available {
			problems = append(problems, fmt.Sprintf("deployment %s is not available (%s)", name, state))
		}
	}

	ds, err := c.clients.Kube.AppsV1().DaemonSets(c.namespace).Get(ctx, rhacs.CollectorDaemonSet, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		problems = append(problems, fmt.Sprintf("daemonset %s not found", rhacs.CollectorDaemonSet))
	case err != nil:
		return healthcheck.Result{}, fmt.Errorf("failed to get daemonset %s: %w", rhacs.CollectorDaemonSet, err)
	default:
		ready, state := kube.DaemonSetReady(ds)
		states = append(states, fmt.Sprintf("daemonset %s: %s", rhacs.CollectorDaemonSet, state))
		if !ready {
			problems = append(problems, fmt.Sprintf("daemonset %s is not ready (%s)", rhacs.CollectorDaemonSet, state))
		}
	}

	if len(problems) > 0 {
		result := healthcheck.Critical(c.ID(), "%s", strings.Join(problems, "; "))
		result.AddRecommendation("Run `rhacs-runner secured-cluster install`")
		return result.WithDetail(strings.Join(states, "\n")), nil
	}
	return healthcheck.OK(c.ID(), "Sensor, admission control and collector are running").WithDetail(strings.Join(states, "\n")), nil
}

// ClusterHealthCheck checks the health Central reports for the secured cluster
type ClusterHealthCheck struct {
	healthcheck.BaseCheck
	api         API
	clusterName string
}

// NewClusterHealthCheck creates a new cluster health check
func NewClusterHealthCheck(api API, clusterName string) *ClusterHealthCheck {
	return &ClusterHealthCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"secured-cluster-health",
			"Secured Cluster Health",
			"Checks that Central reports the secured cluster as HEALTHY",
			types.CategorySecuredCluster,
		),
		api:         api,
		clusterName: clusterName,
	}
}

// Run executes the check
func (c *ClusterHealthCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	if c.api == nil {
		return noAPI(c.ID()), nil
	}

	cluster, err := c.api.ClusterByName(ctx, c.clusterName)
	var notFound *central.ClusterNotFoundError
	if errors.As(err, &notFound) {
		result := healthcheck.Critical(c.ID(), "%v", err)
		result.AddRecommendation("Run `rhacs-runner secured-cluster install`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, err
	}

	health := cluster.HealthStatus
	detail := fmt.Sprintf("sensor: %s\ncollector: %s\nadmission control: %s\nlast contact: %s",
		health.SensorHealthStatus, health.CollectorHealthStatus, health.AdmissionControlHealthStatus, health.LastContact)

	var result healthcheck.Result
	switch health.OverallHealthStatus {
	case central.HealthHealthy:
		result = healthcheck.OK(c.ID(), "Cluster %s is %s", c.clusterName, health.OverallHealthStatus)
	case central.HealthDegraded:
		result = healthcheck.Warning(c.ID(), "Cluster %s is %s", c.clusterName, health.OverallHealthStatus)
		result.AddRecommendation("Check the collector pods; a degraded cluster usually has collectors still starting")
	default:
		result = healthcheck.Critical(c.ID(), "Cluster %s is %s", c.clusterName, health.OverallHealthStatus)
		result.AddRecommendation("Check sensor logs with `oc logs deploy/sensor`")
	}
	result.AddMetadata("cluster_id", cluster.ID)
	return result.WithDetail(detail), nil
}

// GetChecks returns the Central and secured cluster checks. api may be nil
// when no Central credentials are configured.
func GetChecks(clients *kube.Clients, api API, namespace, endpoint, clusterName string) []healthcheck.Check {
	return []healthcheck.Check{
		NewCentralDeployedCheck(clients, namespace),
		NewCentralAPICheck(api, endpoint),
		NewTokenCheck(api),
		NewSecuredClusterCheck(clients, namespace),
		NewClusterHealthCheck(api, clusterName),
	}
}
