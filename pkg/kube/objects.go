package kube

import (
	"context"
	"fmt"
	"reflect"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"
)

// SecretValue returns one key of a Secret
func (c *Clients) SecretValue(ctx context.Context, namespace, name, key string) (string, error) {
	secret, err := c.Kube.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}

	value, ok := secret.Data[key]
	if !ok {
		if s, ok := secret.StringData[key]; ok {
			return s, nil
		}
		return "", fmt.Errorf("secret %s/%s has no key %q", namespace, name, key)
	}
	return string(value), nil
}

// SecretExists reports whether a Secret is present
func (c *Clients) SecretExists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.Kube.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}
	return true, nil
}

// EnsureSecret creates the Secret or replaces its data, type and labels when they differ
func (c *Clients) EnsureSecret(ctx context.Context, secret *corev1.Secret) (OperationResult, error) {
	secrets := c.Kube.CoreV1().Secrets(secret.Namespace)

	existing, err := secrets.Get(ctx, secret.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := secrets.Create(ctx, secret, metav1.CreateOptions{}); err != nil {
			return "", fmt.Errorf("failed to create secret %s/%s: %w", secret.Namespace, secret.Name, err)
		}
		return ResultCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}

	if secretMatches(existing, secret) {
		return ResultUnchanged, nil
	}

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := secrets.Get(ctx, secret.Name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		existing.Data = secret.Data
		existing.Labels = mergeStringMap(existing.Labels, secret.Labels)
		existing.Annotations = mergeStringMap(existing.Annotations, secret.Annotations)
		_, err = secrets.Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to update secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}
	return ResultUpdated, nil
}

func secretMatches(existing, desired *corev1.Secret) bool {
	if desired.Type != "" && existing.Type != desired.Type {
		return false
	}
	if needsStringMap(existing.Labels, desired.Labels) || needsStringMap(existing.Annotations, desired.Annotations) {
		return false
	}
	if len(existing.Data) != len(desired.Data) {
		return false
	}
	if len(desired.Data) == 0 {
		return true
	}
	return reflect.DeepEqual(existing.Data, desired.Data)
}

// MutateConfigMap creates the ConfigMap if needed and lets mutate edit its data.
// mutate returns whether it changed anything; the ConfigMap is only written then.
func (c *Clients) MutateConfigMap(ctx context.Context, namespace, name string, mutate func(data map[string]string) (bool, error)) (OperationResult, error) {
	configMaps := c.Kube.CoreV1().ConfigMaps(namespace)
	result := ResultUnchanged

	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := configMaps.Get(ctx, name, metav1.GetOptions{})
		create := apierrors.IsNotFound(err)
		if create {
			cm = &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace}}
		} else if err != nil {
			return err
		}
		if cm.Data == nil {
			cm.Data = map[string]string{}
		}

		changed, err := mutate(cm.Data)
		if err != nil {
			return err
		}
		if !changed && !create {
			result = ResultUnchanged
			return nil
		}

		if create {
			_, err = configMaps.Create(ctx, cm, metav1.CreateOptions{})
			result = ResultCreated
		} else {
			_, err = configMaps.Update(ctx, cm, metav1.UpdateOptions{})
			result = ResultUpdated
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to update configmap %s/%s: %w", namespace, name, err)
	}
	return result, nil
}
