package certificates

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"

	cmv1 "github.com/cert-manager/cert-manager/pkg/apis/certmanager/v1"
	cmmeta "github.com/cert-manager/cert-manager/pkg/apis/meta/v1"
	routev1 "github.com/openshift/api/route/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/ayaseen/rhacs-runner/pkg/certmanager"
	"github.com/ayaseen/rhacs-runner/pkg/kube"
	"github.com/ayaseen/rhacs-runner/pkg/kube/kubetest"
	"github.com/ayaseen/rhacs-runner/pkg/log"
	"github.com/ayaseen/rhacs-runner/pkg/rhacs"
	"github.com/ayaseen/rhacs-runner/pkg/types"
)

const ns = "stackrox"

func issuer(status cmmeta.ConditionStatus) *cmv1.ClusterIssuer {
	ci := &cmv1.ClusterIssuer{ObjectMeta: metav1.ObjectMeta{Name: "rhacs-ca"}}
	if status != "" {
		ci.Status.Conditions = []cmv1.IssuerCondition{
			{Type: cmv1.IssuerConditionReady, Status: status, Reason: "ErrGetKeyPair", Message: "secret missing"},
		}
	}
	return ci
}

func TestIssuerCheck(t *testing.T) {
	tests := []struct {
		name   string
		objs   []runtime.Object
		status types.Status
	}{
		{name: "missing", status: types.StatusCritical},
		{name: "ready", objs: []runtime.Object{issuer(cmmeta.ConditionTrue)}, status: types.StatusOK},
		{name: "not ready", objs: []runtime.Object{issuer(cmmeta.ConditionFalse)}, status: types.StatusCritical},
		{name: "no condition", objs: []runtime.Object{issuer("")}, status: types.StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := kubetest.NewClients(kubetest.Objects{CertManager: tt.objs})
			result, err := NewIssuerCheck(c, "rhacs-ca").Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
		})
	}
}

type fakeCerts struct {
	status *certmanager.CertificateStatus
	err    error
}

func (f *fakeCerts) CertificateStatus(context.Context, string, string) (*certmanager.CertificateStatus, error) {
	return f.status, f.err
}

func TestCertificateCheck(t *testing.T) {
	now := time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC)
	in := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	tests := []struct {
		name   string
		certs  *fakeCerts
		status types.Status
	}{
		{
			name:   "missing",
			certs:  &fakeCerts{err: apierrors.NewNotFound(schema.GroupResource{Group: "cert-manager.io", Resource: "certificates"}, rhacs.CentralCertificate)},
			status: types.StatusCritical,
		},
		{
			name:   "not ready",
			certs:  &fakeCerts{status: &certmanager.CertificateStatus{Reason: "Pending", Message: "issuing"}},
			status: types.StatusCritical,
		},
		{
			name:   "expiring",
			certs:  &fakeCerts{status: &certmanager.CertificateStatus{Ready: true, NotAfter: in(10 * 24 * time.Hour)}},
			status: types.StatusWarning,
		},
		{
			name:   "valid",
			certs:  &fakeCerts{status: &certmanager.CertificateStatus{Ready: true, NotAfter: in(90 * 24 * time.Hour)}},
			status: types.StatusOK,
		},
		{
			name:   "ready without expiry",
			certs:  &fakeCerts{status: &certmanager.CertificateStatus{Ready: true}},
			status: types.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewCertificateCheck(tt.certs, ns)
			check.now = func() time.Time { return now }

			result, err := check.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.status, result.Status)
		})
	}
}

// selfSigned returns a DER certificate and its PEM encoding
func selfSigned(t *testing.T, cn string) (*x509.Certificate, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func tlsObjects(secretName string, crt []byte) kubetest.Objects {
	central := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "platform.stackrox.io/v1alpha1",
		"kind":       "Central",
		"metadata":   map[string]interface{}{"name": rhacs.CentralName, "namespace": ns},
		"spec": map[string]interface{}{
			"central": map[string]interface{}{
				"defaultTLSSecret": map[string]interface{}{"name": secretName},
			},
		},
	}}
	return kubetest.Objects{
		Dynamic: []runtime.Object{central},
		Kube: []runtime.Object{&corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: rhacs.CentralTLSSecret, Namespace: ns},
			Data:       map[string][]byte{"tls.crt": crt},
		}},
		Route: []runtime.Object{&routev1.Route{
			ObjectMeta: metav1.ObjectMeta{Name: rhacs.CentralRoute, Namespace: ns},
			Spec:       routev1.RouteSpec{Host: "central-stackrox.apps.example.com"},
		}},
	}
}

func tlsCheck(objs kubetest.Objects, dial DialFunc) *CentralTLSCheck {
	c, _ := kubetest.NewClients(objs)
	w := &kube.Waiter{Interval: time.Millisecond, Timeout: 100 * time.Millisecond}
	return NewCentralTLSCheck(c, rhacs.NewManager(c, w, log.Discard(), ns), dial)
}

func TestCentralTLSCheck(t *testing.T) {
	issued, issuedPEM := selfSigned(t, "central-stackrox.apps.example.com")
	other, _ := selfSigned(t, "ingress-operator")

	serving := func(chain ...*x509.Certificate) DialFunc {
		return func(_ context.Context, addr string) ([]*x509.Certificate, error) {
			assert.Equal(t, "central-stackrox.apps.example.com:443", addr)
			return chain, nil
		}
	}

	t.Run("serves issued certificate", func(t *testing.T) {
		result, err := tlsCheck(tlsObjects(rhacs.CentralTLSSecret, issuedPEM), serving(issued)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StatusOK, result.Status)
		assert.Equal(t, "42", result.Metadata["serial"])
	})

	t.Run("serves another certificate", func(t *testing.T) {
		result, err := tlsCheck(tlsObjects(rhacs.CentralTLSSecret, issuedPEM), serving(other)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StatusCritical, result.Status)
		assert.Contains(t, result.Message, `"ingress-operator"`)
	})

	t.Run("central not patched", func(t *testing.T) {
		result, err := tlsCheck(tlsObjects("", issuedPEM), serving(issued)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StatusCritical, result.Status)
		assert.Contains(t, result.Recommendations[0], "cert-manager install")
	})

	t.Run("central missing", func(t *testing.T) {
		result, err := tlsCheck(kubetest.Objects{}, serving(issued)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StatusCritical, result.Status)
		assert.Contains(t, result.Message, "not found")
	})

	t.Run("unreachable", func(t *testing.T) {
		dial := func(context.Context, string) ([]*x509.Certificate, error) {
			return nil, errors.New("connection refused")
		}
		result, err := tlsCheck(tlsObjects(rhacs.CentralTLSSecret, issuedPEM), dial).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, types.StatusWarning, result.Status)
	})
}

func TestServedCertificatesRejectsBadAddress(t *testing.T) {
	_, err := ServedCertificates(context.Background(), "no-port")
	assert.Error(t, err)
}
