package kube

import (
	"context"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// PreflightResult describes the cluster and the identity commands run as
type PreflightResult struct {
	User             string
	ServerVersion    string
	OpenShiftVersion string
}

// Preflight checks that the API server is reachable, that we are logged in and
// that the identity may create OLM subscriptions.
func (c *Clients) Preflight(ctx context.Context) (*PreflightResult, error) {
	info, err := c.Kube.Discovery().ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("cannot reach the API server: %w", err)
	}

	res := &PreflightResult{ServerVersion: info.GitVersion}

	user, err := c.User.UserV1().Users().Get(ctx, "~", metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("not logged in to the cluster: %w", err)
	}
	res.User = user.Name

	cv, err := c.Config.ConfigV1().ClusterVersions().Get(ctx, "version", metav1.GetOptions{})
	switch {
	case err == nil:
		res.OpenShiftVersion = cv.Status.Desired.Version
	case apierrors.IsNotFound(err):
		return nil, fmt.Errorf("cluster is not OpenShift: clusterversion/version not found")
	default:
		return nil, fmt.Errorf("failed to read cluster version: %w", err)
	}

	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authorizationv1.ResourceAttributes{
				Verb:     "create",
				Group:    SubscriptionGVR.Group,
				Resource: SubscriptionGVR.Resource,
			},
		},
	}
	review, err = c.Kube.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to check permissions: %w", err)
	}
	if !review.Status.Allowed {
		return nil, fmt.Errorf("user %s is not allowed to create subscriptions; cluster-admin is required", res.User)
	}

	return res, nil
}
