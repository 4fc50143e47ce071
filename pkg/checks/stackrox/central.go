/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-08

This file implements the Central checks. It:

- Verifies the Central resource is Deployed and its Deployment is available
- Verifies the Central API answers on the route
- Verifies the configured API token authenticates against Central
*/

package stackrox

import (
	"context"
	"fmt"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/ayaseen/rhacs-runner/pkg/central"
	"github.com/ayaseen/rhacs-runner/pkg/healthcheck"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/olm"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// API is the part of the Central API the checks use
type API interface {
	Ping(ctx context.Context) error
	AuthStatus(ctx context.Context) (*central.AuthStatus, error)
	ClusterByName(ctx context.Context, name string) (*central.Cluster, error)
}

// noAPI is the result of API checks run without Central credentials
func noAPI(checkID string) healthcheck.Result {
	result := healthcheck.Critical(checkID, "Central API credentials are not configured")
	result.AddRecommendation("Run `rhacs-runner setup` to discover the endpoint and generate an API token")
	return result
}

// CentralDeployedCheck checks the Central resource and Deployment
type CentralDeployedCheck struct {
	healthcheck.BaseCheck
	clients   *kube.Clients
	namespace string
}

// NewCentralDeployedCheck creates a new Central deployment check
func NewCentralDeployedCheck(clients *kube.Clients, namespace string) *CentralDeployedCheck {
	return &CentralDeployedCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"central-deployed",
			"Central Deployment",
			"Checks that Central is Deployed and the central Deployment is available",
			types.CategoryCentral,
		),
		clients:   clients,
		namespace: namespace,
	}
}

// Run executes the check
func (c *CentralDeployedCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	obj, err := c.clients.Dynamic.Resource(kube.CentralGVR).Namespace(c.namespace).Get(ctx, rhacs.CentralName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		result := healthcheck.Critical(c.ID(), "Central %s/%s not found", c.namespace, rhacs.CentralName)
		result.AddRecommendation("Run `rhacs-runner central install`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, fmt.Errorf("failed to get central: %w", err)
	}

	for _, bad := range []string{"ReleaseFailed", "Irreconcilable"} {
		if cond, ok := kube.FindCondition(obj, bad); ok && cond.Status == "True" {
			result := healthcheck.Critical(c.ID(), "Central is %s: %s", bad, cond.Message)
			result.AddRecommendation(fmt.Sprintf("Inspect the operator logs with `oc logs -n %s deploy/rhacs-operator-controller-manager`", olm.RHACSOperator.Namespace))
			return result, nil
		}
	}

	cond, ok := kube.FindCondition(obj, "Deployed")
	if !ok || cond.Status != "True" {
		state := "Deployed not reported"
		if ok {
			state = cond.String()
		}
		return healthcheck.Critical(c.ID(), "Central is not deployed (%s)", state), nil
	}

	deploy, err := c.clients.Kube.AppsV1().Deployments(c.namespace).Get(ctx, rhacs.CentralDeployment, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return healthcheck.Critical(c.ID(), "Deployment %s/%s not found", c.namespace, rhacs.CentralDeployment), nil
	}
	if err != nil {
		return healthcheck.Result{}, fmt.Errorf("failed to get deployment: %w", err)
	}

	available, state, err := kube.DeploymentAvailable(deploy)
	if err != nil {
		return healthcheck.Critical(c.ID(), "Deployment %s: %v", rhacs.CentralDeployment, err), nil
	}
	if !available {
		return healthcheck.Warning(c.ID(), "Central is deployed but not available yet (%s)", state), nil
	}
	return healthcheck.OK(c.ID(), "Central is deployed and available (%s)", state), nil
}

// CentralAPICheck pings the Central API
type CentralAPICheck struct {
	healthcheck.BaseCheck
	api      API
	endpoint string
}

// NewCentralAPICheck creates a new Central API check
func NewCentralAPICheck(api API, endpoint string) *CentralAPICheck {
	return &CentralAPICheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"central-api",
			"Central API",
			"Checks that the Central API answers on its route",
			types.CategoryCentral,
		),
		api:      api,
		endpoint: endpoint,
	}
}

// Run executes the check
func (c *CentralAPICheck) Run(ctx context.Context) (healthcheck.Result, error) {
	if c.api == nil {
		return noAPI(c.ID()), nil
	}
	if err := c.api.Ping(ctx); err != nil {
		result := healthcheck.Critical(c.ID(), "Central at %s does not answer: %v", c.endpoint, err)
		result.AddRecommendation("Check the central route and pod with `oc get route,pods -l app=central`")
		return result, nil
	}
	return healthcheck.OK(c.ID(), "Central API answers at %s", c.endpoint), nil
}

// TokenCheck checks the API token is accepted
type TokenCheck struct {
	healthcheck.BaseCheck
	api API
}

// NewTokenCheck creates a new API token check
func NewTokenCheck(api API) *TokenCheck {
	return &TokenCheck{
		BaseCheck: healthcheck.NewBaseCheck(
			"central-api-token",
			"Central API Token",
			"Checks that the configured API token authenticates against Central",
			types.CategoryCentral,
		),
		api: api,
	}
}

// Run executes the check
func (c *TokenCheck) Run(ctx context.Context) (healthcheck.Result, error) {
	if c.api == nil {
		return noAPI(c.ID()), nil
	}

	status, err := c.api.AuthStatus(ctx)
	if central.IsStatus(err, http.StatusUnauthorized) || central.IsStatus(err, http.StatusForbidden) {
		result := healthcheck.Critical(c.ID(), "The API token is rejected by Central")
		result.AddRecommendation("Generate a new token with `rhacs-runner setup`")
		return result, nil
	}
	if err != nil {
		return healthcheck.Result{}, err
	}
	if status.Anonymous {
		return healthcheck.Warning(c.ID(), "Central accepted the request without an identity"), nil
	}

	result := healthcheck.OK(c.ID(), "Authenticated as %s", status.UserID)
	if status.Expires != "" {
		result.AddMetadata("expires", status.Expires)
	}
	return result, nil
}
