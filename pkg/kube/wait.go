/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-03

This file implements bounded, fixed-interval waits on cluster state. It:

- Polls a condition at a fixed interval until it holds, fails or times out
- Shows a spinner with the last observed state on interactive terminals
- Reports the resource and its last observed state when a wait times out
- Provides waits for Deployments, DaemonSets and unstructured status conditions
*/

package kube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ConditionFunc reports whether the wait is over and a short description of
// the observed state. A non-nil error aborts the wait.
type ConditionFunc func(ctx context.Context) (done bool, state string, err error)

// Waiter polls at a fixed interval with an upper bound
type Waiter struct {
	Interval time.Duration
	Timeout  time.Duration

	// Progress enables the spinner
	Progress bool
	Out      io.Writer
}

// NewWaiter creates a Waiter. The spinner is only shown when progress is
// requested and Out is a terminal.
func NewWaiter(interval, timeout time.Duration, progress bool) *Waiter {
	return &Waiter{
		Interval: interval,
		Timeout:  timeout,
		Progress: progress && isatty.IsTerminal(os.Stderr.Fd()),
		Out:      os.Stderr,
	}
}

// TimeoutError is returned when the condition did not hold in time
type TimeoutError struct {
	What      string
	Timeout   time.Duration
	LastState string
}

func (e *TimeoutError) Error() string {
	if e.LastState == "" {
		return fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
	}
	return fmt.Sprintf("timed out after %s waiting for %s (last state: %s)", e.Timeout, e.What, e.LastState)
}

// IsTimeout reports whether err is a wait timeout
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}

// Poll waits until cond is done. what names the awaited resource in errors.
func (w *Waiter) Poll(ctx context.Context, what string, cond ConditionFunc) error {
	var bar *progressbar.ProgressBar
	if w.Progress {
		out := w.Out
		if out == nil {
			out = os.Stderr
		}
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("waiting for "+what),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionClearOnFinish(),
		)
		defer func() { _ = bar.Finish() }()
	}

	lastState := ""
	err := wait.PollUntilContextTimeout(ctx, w.Interval, w.Timeout, true, func(ctx context.Context) (bool, error) {
		done, state, err := cond(ctx)
		if state != "" {
			lastState = state
		}
		if bar != nil {
			bar.Describe(fmt.Sprintf("waiting for %s: %s", what, lastState))
			_ = bar.Add(1)
		}
		return done, err
	})

	if err != nil && wait.Interrupted(err) && ctx.Err() == nil {
		return &TimeoutError{What: what, Timeout: w.Timeout, LastState: lastState}
	}
	return err
}

// WaitForDeploymentAvailable waits until every replica of the Deployment is
// updated and available.
func (w *Waiter) WaitForDeploymentAvailable(ctx context.Context, c *Clients, namespace, name string) error {
	return w.Poll(ctx, fmt.Sprintf("deployment %s/%s", namespace, name), func(ctx context.Context) (bool, string, error) {
		d, err := c.Kube.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, "not found", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}
		return DeploymentAvailable(d)
	})
}

// DeploymentAvailable evaluates a Deployment's rollout status
func DeploymentAvailable(d *appsv1.Deployment) (bool, string, error) {
	want := int32(1)
	if d.Spec.Replicas != nil {
		want = *d.Spec.Replicas
	}
	state := fmt.Sprintf("%d/%d available", d.Status.AvailableReplicas, want)

	if d.Status.ObservedGeneration < d.Generation {
		return false, state + ", rollout not observed", nil
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentProgressing && cond.Reason == "ProgressDeadlineExceeded" {
			return false, state, fmt.Errorf("deployment %s/%s exceeded its progress deadline: %s", d.Namespace, d.Name, cond.Message)
		}
	}
	if d.Status.UpdatedReplicas < want || d.Status.AvailableReplicas < want {
		return false, state, nil
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable {
			return cond.Status == corev1.ConditionTrue, state, nil
		}
	}
	return true, state, nil
}

// WaitForDaemonSetReady waits until the DaemonSet runs a ready, updated pod on
// every scheduled node.
func (w *Waiter) WaitForDaemonSetReady(ctx context.Context, c *Clients, namespace, name string) error {
	return w.Poll(ctx, fmt.Sprintf("daemonset %s/%s", namespace, name), func(ctx context.Context) (bool, string, error) {
		ds, err := c.Kube.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, "not found", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}
		done, state := DaemonSetReady(ds)
		return done, state, nil
	})
}

// DaemonSetReady evaluates a DaemonSet's rollout status
func DaemonSetReady(ds *appsv1.DaemonSet) (bool, string) {
	s := ds.Status
	state := fmt.Sprintf("%d/%d ready", s.NumberReady, s.DesiredNumberScheduled)
	if s.ObservedGeneration < ds.Generation || s.DesiredNumberScheduled == 0 {
		return false, state
	}
	return s.NumberReady == s.DesiredNumberScheduled && s.UpdatedNumberScheduled == s.DesiredNumberScheduled, state
}

// WaitForCondition waits until the object has condType with the given status
func (w *Waiter) WaitForCondition(ctx context.Context, c *Clients, gvr schema.GroupVersionResource, namespace, name, condType, status string) error {
	what := fmt.Sprintf("%s %s condition %s=%s", gvr.Resource, name, condType, status)
	return w.Poll(ctx, what, func(ctx context.Context) (bool, string, error) {
		obj, err := c.Dynamic.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return false, "not found", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}
		cond, found := FindCondition(obj, condType)
		if !found {
			return false, condType + " not reported", nil
		}
		return cond.Status == status, cond.String(), nil
	})
}

// Condition is a status condition read from an unstructured object
type Condition struct {
	Type    string
	Status  string
	Reason  string
	Message string
}

func (c Condition) String() string {
	s := c.Type + "=" + c.Status
	if c.Reason != "" {
		s += " (" + c.Reason + ")"
	}
	if c.Message != "" {
		s += ": " + c.Message
	}
	return s
}

// FindCondition returns the condition of the given type from .status.conditions
func FindCondition(obj *unstructured.Unstructured, condType string) (Condition, bool) {
	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	for _, raw := range conditions {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _, _ := unstructured.NestedString(m, "type"); t != condType {
			continue
		}
		cond := Condition{Type: condType}
		cond.Status, _, _ = unstructured.NestedString(m, "status")
		cond.Reason, _, _ = unstructured.NestedString(m, "reason")
		cond.Message, _, _ = unstructured.NestedString(m, "message")
		return cond, true
	}
	return Condition{}, false
}
