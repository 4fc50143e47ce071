/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-03

This file installs and upgrades operators through OLM. It:

- Ensures the operator namespace, OperatorGroup and Subscription
- Approves pending InstallPlans when approval is Manual
- Waits for the installed ClusterServiceVersion to reach phase Succeeded
- Switches channels and waits for a newer CSV when upgrading
*/

package olm

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/util/retry"

	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/manifests"
)

// CSV phases
const (
	PhaseSucceeded = "Succeeded"
	PhaseFailed    = "Failed"
)

// Operator describes an operator installed from a catalog
type Operator struct {
	Package   string
	Namespace string
	Channel   string

	// AllNamespaces selects an OperatorGroup without target namespaces
	AllNamespaces bool

	Source          string
	SourceNamespace string

	// Approval is Automatic or Manual
	Approval string
}

// Operators installed by the tool
var (
	RHACSOperator = Operator{
		Package:         "rhacs-operator",
		Namespace:       "rhacs-operator",
		Channel:         "stable",
		AllNamespaces:   true,
		Source:          "redhat-operators",
		SourceNamespace: "openshift-marketplace",
		Approval:        "Automatic",
	}
	CertManagerOperator = Operator{
		Package:         "openshift-cert-manager-operator",
		Namespace:       "cert-manager-operator",
		Channel:         "stable-v1",
		Source:          "redhat-operators",
		SourceNamespace: "openshift-marketplace",
		Approval:        "Automatic",
	}
	ComplianceOperator = Operator{
		Package:         "compliance-operator",
		Namespace:       "openshift-compliance",
		Channel:         "stable",
		Source:          "redhat-operators",
		SourceNamespace: "openshift-marketplace",
		Approval:        "Automatic",
	}
)

// WithChannel returns a copy of the operator subscribed to channel
func (o Operator) WithChannel(channel string) Operator {
	if channel != "" {
		o.Channel = channel
	}
	return o
}

// Installer drives OLM for one cluster
type Installer struct {
	clients *kube.Clients
	waiter  *kube.Waiter
	log     *log.Logger
}

// NewInstaller creates an Installer
func NewInstaller(clients *kube.Clients, waiter *kube.Waiter, logger *log.Logger) *Installer {
	return &Installer{clients: clients, waiter: waiter, log: logger}
}

// Install ensures the operator is subscribed and waits for its CSV. It returns
// the name of the installed CSV.
func (i *Installer) Install(ctx context.Context, op Operator) (string, error) {
	if _, err := i.EnsureSubscription(ctx, op); err != nil {
		return "", err
	}
	return i.WaitForInstalledCSV(ctx, op, "")
}

// EnsureSubscription ensures the namespace, OperatorGroup and Subscription
func (i *Installer) EnsureSubscription(ctx context.Context, op Operator) (kube.OperationResult, error) {
	res, err := i.clients.EnsureNamespace(ctx, op.Namespace, nil)
	if err != nil {
		return "", err
	}
	i.log.Info("Namespace %s %s", op.Namespace, res)

	if err := i.ensureOperatorGroup(ctx, op); err != nil {
		return "", err
	}

	sub, err := manifests.RenderSubscription(manifests.Subscription{
		Name:            op.Package,
		Namespace:       op.Namespace,
		Package:         op.Package,
		Channel:         op.Channel,
		Source:          op.Source,
		SourceNamespace: op.SourceNamespace,
		Approval:        op.Approval,
	})
	if err != nil {
		return "", err
	}

	res, err = i.clients.EnsureUnstructured(ctx, kube.SubscriptionGVR, sub)
	if err != nil {
		return "", err
	}
	i.log.Info("Subscription %s/%s (channel %s) %s", op.Namespace, op.Package, op.Channel, res)
	return res, nil
}

// ensureOperatorGroup creates an OperatorGroup unless the namespace already has one.
// OLM refuses to install into a namespace with more than one.
func (i *Installer) ensureOperatorGroup(ctx context.Context, op Operator) error {
	groups, err := i.clients.Dynamic.Resource(kube.OperatorGroupGVR).Namespace(op.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list operator groups in %s: %w", op.Namespace, err)
	}
	if len(groups.Items) > 0 {
		i.log.Debug("OperatorGroup %s already present in %s", groups.Items[0].GetName(), op.Namespace)
		return nil
	}

	params := manifests.OperatorGroup{Name: op.Package, Namespace: op.Namespace}
	if !op.AllNamespaces {
		params.TargetNamespaces = []string{op.Namespace}
	}
	og, err := manifests.RenderOperatorGroup(params)
	if err != nil {
		return err
	}

	if _, err := i.clients.EnsureUnstructured(ctx, kube.OperatorGroupGVR, og); err != nil {
		return err
	}
	i.log.Info("OperatorGroup %s/%s created", op.Namespace, op.Package)
	return nil
}

// Subscription returns the operator's Subscription
func (i *Installer) Subscription(ctx context.Context, op Operator) (*unstructured.Unstructured, error) {
	sub, err := i.clients.Dynamic.Resource(kube.SubscriptionGVR).Namespace(op.Namespace).Get(ctx, op.Package, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s/%s: %w", op.Namespace, op.Package, err)
	}
	return sub, nil
}

// ApprovePendingInstallPlan approves the InstallPlan the Subscription is
// waiting on, if any. It reports whether a plan was approved.
func (i *Installer) ApprovePendingInstallPlan(ctx context.Context, op Operator) (bool, error) {
	sub, err := i.Subscription(ctx, op)
	if err != nil {
		return false, err
	}

	planName, _, _ := unstructured.NestedString(sub.Object, "status", "installPlanRef", "name")
	if planName == "" {
		planName, _, _ = unstructured.NestedString(sub.Object, "status", "installplan", "name")
	}
	if planName == "" {
		return false, nil
	}

	plans := i.clients.Dynamic.Resource(kube.InstallPlanGVR).Namespace(op.Namespace)
	approved := false
	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		plan, err := plans.Get(ctx, planName, metav1.GetOptions{})
		if err != nil {
			return err
		}
		ok, _, _ := unstructured.NestedBool(plan.Object, "spec", "approved")
		if ok {
			return nil
		}
		if err := unstructured.SetNestedField(plan.Object, true, "spec", "approved"); err != nil {
			return err
		}
		if _, err := plans.Update(ctx, plan, metav1.UpdateOptions{}); err != nil {
			return err
		}
		approved = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to approve install plan %s/%s: %w", op.Namespace, planName, err)
	}
	if approved {
		i.log.Info("Approved install plan %s/%s", op.Namespace, planName)
	}
	return approved, nil
}

// WaitForInstalledCSV waits until the Subscription reports an installed CSV
// in phase Succeeded. When notName is set, that CSV does not count, so an
// upgrade waits for the replacement. Phase Failed ends the wait.
func (i *Installer) WaitForInstalledCSV(ctx context.Context, op Operator, notName string) (string, error) {
	var installed string
	what := fmt.Sprintf("operator %s CSV", op.Package)

	err := i.waiter.Poll(ctx, what, func(ctx context.Context) (bool, string, error) {
		if op.Approval == "Manual" {
			if _, err := i.ApprovePendingInstallPlan(ctx, op); err != nil {
				return false, err.Error(), nil
			}
		}

		sub, err := i.clients.Dynamic.Resource(kube.SubscriptionGVR).Namespace(op.Namespace).Get(ctx, op.Package, metav1.GetOptions{})
		if err != nil {
			return false, err.Error(), nil
		}

		name, _, _ := unstructured.NestedString(sub.Object, "status", "installedCSV")
		if name == "" {
			name, _, _ = unstructured.NestedString(sub.Object, "status", "currentCSV")
		}
		if name == "" {
			if state, _, _ := unstructured.NestedString(sub.Object, "status", "state"); state != "" {
				return false, "no CSV yet, subscription " + state, nil
			}
			return false, "no CSV yet", nil
		}
		if name == notName {
			return false, name + " still installed", nil
		}

		phase, message, err := i.CSVPhase(ctx, op.Namespace, name)
		if apierrors.IsNotFound(err) {
			return false, name + " not created", nil
		}
		if err != nil {
			return false, err.Error(), nil
		}

		state := name + " " + phase
		if phase == PhaseFailed {
			return false, state, fmt.Errorf("CSV %s/%s failed: %s", op.Namespace, name, message)
		}
		if phase != PhaseSucceeded {
			return false, state, nil
		}

		installed = name
		return true, state, nil
	})
	if err != nil {
		return "", err
	}

	i.log.Success("Operator %s installed (%s)", op.Package, installed)
	return installed, nil
}

// CSVPhase returns the phase and message of a CSV
func (i *Installer) CSVPhase(ctx context.Context, namespace, name string) (string, string, error) {
	csv, err := i.clients.Dynamic.Resource(kube.ClusterServiceVersionGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", "", err
	}
	phase, _, _ := unstructured.NestedString(csv.Object, "status", "phase")
	message, _, _ := unstructured.NestedString(csv.Object, "status", "message")
	return phase, message, nil
}

// InstalledCSV returns the CSV the Subscription currently reports as installed
func (i *Installer) InstalledCSV(ctx context.Context, op Operator) (string, error) {
	sub, err := i.Subscription(ctx, op)
	if err != nil {
		return "", err
	}
	name, _, _ := unstructured.NestedString(sub.Object, "status", "installedCSV")
	return name, nil
}

// Upgrade moves the Subscription to op.Channel and waits for a newer CSV
// to succeed. Nothing happens when the channel is already current.
func (i *Installer) Upgrade(ctx context.Context, op Operator) (string, error) {
	sub, err := i.Subscription(ctx, op)
	if err != nil {
		return "", err
	}

	current, _, _ := unstructured.NestedString(sub.Object, "spec", "channel")
	installed, _, _ := unstructured.NestedString(sub.Object, "status", "installedCSV")
	if current == op.Channel {
		i.log.Info("Subscription %s/%s already on channel %s", op.Namespace, op.Package, op.Channel)
		return i.WaitForInstalledCSV(ctx, op, "")
	}

	i.log.Info("Switching %s from channel %s to %s", op.Package, current, op.Channel)
	patch := map[string]interface{}{"spec": map[string]interface{}{"channel": op.Channel}}
	if err := i.clients.MergePatch(ctx, kube.SubscriptionGVR, op.Namespace, op.Package, patch); err != nil {
		return "", err
	}

	upgraded, err := i.WaitForInstalledCSV(ctx, op, installed)
	if err != nil {
		return "", err
	}

	if installed != "" {
		newer, err := IsNewer(installed, upgraded)
		if err != nil {
			i.log.Warning("Cannot compare CSV versions: %v", err)
		} else if !newer {
			return "", fmt.Errorf("operator %s moved from %s to %s, which is not newer", op.Package, installed, upgraded)
		}
	}
	return upgraded, nil
}

// CSVVersion parses the version from a CSV name such as rhacs-operator.v4.7.2
func CSVVersion(name string) (*semver.Version, error) {
	idx := strings.Index(name, ".v")
	if idx < 0 {
		return nil, fmt.Errorf("CSV name %q has no version", name)
	}
	v, err := semver.NewVersion(name[idx+2:])
	if err != nil {
		return nil, fmt.Errorf("CSV name %q has an invalid version: %w", name, err)
	}
	return v, nil
}

// IsNewer reports whether CSV b carries a higher version than CSV a
func IsNewer(a, b string) (bool, error) {
	va, err := CSVVersion(a)
	if err != nil {
		return false, err
	}
	vb, err := CSVVersion(b)
	if err != nil {
		return false, err
	}
	return va.LessThan(*vb), nil
}
