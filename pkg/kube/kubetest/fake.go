// Package kubetest builds kube.Clients backed by fake clientsets for unit tests.
package kubetest

import (
	cmfake "github.com/cert-manager/cert-manager/pkg/client/clientset/versioned/fake"
	configfake "github.com/openshift/client-go/config/clientset/versioned/fake"
	routefake "github.com/openshift/client-go/route/clientset/versioned/fake"
	userfake "github.com/openshift/client-go/user/clientset/versioned/fake"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"

	"github.com/ayaseen/rhacs-runner/pkg/kube"
)

// Objects seeds each fake clientset
type Objects struct {
	Kube        []runtime.Object
	Dynamic     []runtime.Object
	Route       []runtime.Object
	Config      []runtime.Object
	User        []runtime.Object
	CertManager []runtime.Object
}

// Fakes exposes the typed fakes so tests can add reactors
type Fakes struct {
	Kube        *kubefake.Clientset
	Dynamic     *dynamicfake.FakeDynamicClient
	Route       *routefake.Clientset
	Config      *configfake.Clientset
	User        *userfake.Clientset
	CertManager *cmfake.Clientset
}

// NewClients returns clients backed by fakes seeded with objs
func NewClients(objs Objects) (*kube.Clients, *Fakes) {
	f := &Fakes{
		Kube:        kubefake.NewSimpleClientset(objs.Kube...),
		Dynamic:     dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), kube.ListKinds(), objs.Dynamic...),
		Route:       routefake.NewSimpleClientset(objs.Route...),
		Config:      configfake.NewSimpleClientset(objs.Config...),
		User:        userfake.NewSimpleClientset(objs.User...),
		CertManager: cmfake.NewSimpleClientset(objs.CertManager...),
	}

	return &kube.Clients{
		Kube:        f.Kube,
		Dynamic:     f.Dynamic,
		Route:       f.Route,
		Config:      f.Config,
		User:        f.User,
		CertManager: f.CertManager,
	}, f
}
