package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
)

// OperationResult tells what an Ensure call did
type OperationResult string

const (
	ResultCreated   OperationResult = "created"
	ResultUpdated   OperationResult = "updated"
	ResultUnchanged OperationResult = "unchanged"
)

// Changed reports whether the cluster was modified
func (r OperationResult) Changed() bool {
	return r == ResultCreated || r == ResultUpdated
}

// EnsureNamespace creates the namespace if needed and adds missing labels
func (c *Clients) EnsureNamespace(ctx context.Context, name string, labels map[string]string) (OperationResult, error) {
	ns, err := c.Kube.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		ns = &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels}}
		if _, err := c.Kube.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil {
			if apierrors.IsAlreadyExists(err) {
				return ResultUnchanged, nil
			}
			return "", fmt.Errorf("failed to create namespace %s: %w", name, err)
		}
		return ResultCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get namespace %s: %w", name, err)
	}

	if !needsStringMap(ns.Labels, labels) {
		return ResultUnchanged, nil
	}

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		ns, err := c.Kube.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		ns.Labels = mergeStringMap(ns.Labels, labels)
		_, err = c.Kube.CoreV1().Namespaces().Update(ctx, ns, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to label namespace %s: %w", name, err)
	}
	return ResultUpdated, nil
}

// EnsureUnstructured creates obj, or updates the existing object so that every
// field set in obj has the desired value. Fields only present on the cluster
// are left alone, as are status and metadata other than labels and annotations.
func (c *Clients) EnsureUnstructured(ctx context.Context, gvr schema.GroupVersionResource, obj *unstructured.Unstructured) (OperationResult, error) {
	client := c.Dynamic.Resource(gvr).Namespace(obj.GetNamespace())
	kind := obj.GetKind()
	name := obj.GetName()

	_, err := client.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := client.Create(ctx, obj, metav1.CreateOptions{}); err != nil {
			return "", fmt.Errorf("failed to create %s %s: %w", kind, name, err)
		}
		return ResultCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s %s: %w", kind, name, err)
	}

	result := ResultUnchanged
	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := client.Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		if !mergeDesired(existing, obj) {
			result = ResultUnchanged
			return nil
		}
		if _, err := client.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
			return err
		}
		result = ResultUpdated
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to update %s %s: %w", kind, name, err)
	}

	return result, nil
}

// MergePatch applies a JSON merge patch to a dynamic resource
func (c *Clients) MergePatch(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string, patch map[string]interface{}) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}
	_, err = c.Dynamic.Resource(gvr).Namespace(namespace).Patch(ctx, name, types.MergePatchType, data, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("failed to patch %s %s/%s: %w", gvr.Resource, namespace, name, err)
	}
	return nil
}

// mergeDesired copies desired fields into existing and reports whether anything changed
func mergeDesired(existing, desired *unstructured.Unstructured) bool {
	changed := false

	if needsStringMap(existing.GetLabels(), desired.GetLabels()) {
		existing.SetLabels(mergeStringMap(existing.GetLabels(), desired.GetLabels()))
		changed = true
	}
	if needsStringMap(existing.GetAnnotations(), desired.GetAnnotations()) {
		existing.SetAnnotations(mergeStringMap(existing.GetAnnotations(), desired.GetAnnotations()))
		changed = true
	}

	for key, value := range desired.Object {
		switch key {
		case "apiVersion", "kind", "metadata", "status":
			continue
		}
		if mergeValue(existing.Object, key, value) {
			changed = true
		}
	}

	return changed
}

func mergeValue(dst map[string]interface{}, key string, value interface{}) bool {
	src, isMap := value.(map[string]interface{})
	cur, curIsMap := dst[key].(map[string]interface{})
	if isMap && curIsMap {
		changed := false
		for k, v := range src {
			if mergeValue(cur, k, v) {
				changed = true
			}
		}
		return changed
	}

	if reflect.DeepEqual(dst[key], value) {
		return false
	}
	dst[key] = value
	return true
}

func needsStringMap(current, desired map[string]string) bool {
	for k, v := range desired {
		if cur, ok := current[k]; !ok || cur != v {
			return true
		}
	}
	return false
}

func mergeStringMap(current, desired map[string]string) map[string]string {
	out := make(map[string]string, len(current)+len(desired))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range desired {
		out[k] = v
	}
	return out
}
