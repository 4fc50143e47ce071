/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-03

This file builds the Kubernetes and OpenShift clients used by every command. It:

- Resolves the REST config from the flag, $KUBECONFIG, in-cluster or ~/.kube/config
- Creates the core, dynamic, route, config, user and cert-manager clientsets
- Keeps the clients behind interfaces so tests can substitute fakes
*/

package kube

import (
	"fmt"
	"os"
	"path/filepath"

	cmclient "github.com/cert-manager/cert-manager/pkg/client/clientset/versioned"
	configclient "github.com/openshift/client-go/config/clientset/versioned"
	routeclient "github.com/openshift/client-go/route/clientset/versioned"
	userclient "github.com/openshift/client-go/user/clientset/versioned"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Clients bundles every API client a command may need
type Clients struct {
	Kube        kubernetes.Interface
	Dynamic     dynamic.Interface
	Route       routeclient.Interface
	Config      configclient.Interface
	User        userclient.Interface
	CertManager cmclient.Interface

	// RestConfig is nil for fake clients
	RestConfig *rest.Config
}

// GetClusterConfig returns the REST config. An explicit kubeconfig path wins,
// then $KUBECONFIG, then the in-cluster config, then ~/.kube/config.
func GetClusterConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}

	if kubeconfig == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	if info, err := os.Stat(kubeconfig); err != nil || info.IsDir() {
		return nil, fmt.Errorf("kubeconfig file not found at %s", kubeconfig)
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build config from kubeconfig: %w", err)
	}

	return config, nil
}

// NewClients creates all clients from the resolved kubeconfig
func NewClients(kubeconfig string) (*Clients, error) {
	config, err := GetClusterConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	return NewClientsForConfig(config)
}

// NewClientsForConfig creates all clients from a REST config
func NewClientsForConfig(config *rest.Config) (*Clients, error) {
	kube, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	route, err := routeclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create route client: %w", err)
	}

	cfg, err := configclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create config client: %w", err)
	}

	user, err := userclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create user client: %w", err)
	}

	cm, err := cmclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cert-manager client: %w", err)
	}

	return &Clients{
		Kube:        kube,
		Dynamic:     dyn,
		Route:       route,
		Config:      cfg,
		User:        user,
		CertManager: cm,
		RestConfig:  config,
	}, nil
}
