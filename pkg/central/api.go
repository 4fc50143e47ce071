package central

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Cluster health values reported by Central
const (
	HealthHealthy       = "HEALTHY"
	HealthDegraded      = "DEGRADED"
	HealthUnhealthy     = "UNHEALTHY"
	HealthUninitialized = "UNINITIALIZED"
	HealthUnavailable   = "UNAVAILABLE"
)

// ClusterHealthStatus is the health summary Central keeps per secured cluster
type ClusterHealthStatus struct {
	OverallHealthStatus          string `json:"overallHealthStatus"`
	SensorHealthStatus           string `json:"sensorHealthStatus"`
	CollectorHealthStatus        string `json:"collectorHealthStatus"`
	AdmissionControlHealthStatus string `json:"admissionControlHealthStatus"`
	LastContact                  string `json:"lastContact,omitempty"`
}

// Cluster is a secured cluster registered with Central
type Cluster struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Type         string              `json:"type"`
	MainImage    string              `json:"mainImage,omitempty"`
	HealthStatus ClusterHealthStatus `json:"healthStatus"`
}

// AuthStatus describes the identity behind the current credentials
type AuthStatus struct {
	UserID    string
	Expires   string
	Provider  string
	Anonymous bool
}

// InitBundle is a freshly generated init bundle
type InitBundle struct {
	ID   string
	Name string

	// KubectlBundle is the decoded multi-document YAML of the bundle Secrets
	KubectlBundle []byte
}

// Ping checks that Central answers API requests
func (c *Client) Ping(ctx context.Context) error {
	data, err := c.do(ctx, http.MethodGet, "/v1/ping", nil, nil)
	if err != nil {
		return err
	}
	if status := gjson.GetBytes(data, "status").String(); status != "ok" {
		return fmt.Errorf("central ping returned status %q", status)
	}
	return nil
}

// AuthStatus returns the identity of the configured credentials
func (c *Client) AuthStatus(ctx context.Context) (*AuthStatus, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/auth/status", nil, nil)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(data)
	status := &AuthStatus{
		UserID:   res.Get("userId").String(),
		Expires:  res.Get("expires").String(),
		Provider: res.Get("authProvider.name").String(),
	}
	status.Anonymous = status.UserID == ""
	return status, nil
}

// GenerateToken creates an API token with the given roles
func (c *Client) GenerateToken(ctx context.Context, name string, roles []string) (string, error) {
	req := map[string]interface{}{
		"name":  name,
		"roles": roles,
	}

	data, err := c.do(ctx, http.MethodPost, "/v1/apitokens/generate", req, nil)
	if err != nil {
		return "", err
	}

	token := gjson.GetBytes(data, "token").String()
	if token == "" {
		return "", fmt.Errorf("central returned an empty API token")
	}
	return token, nil
}

// ListClusters returns every secured cluster known to Central
func (c *Client) ListClusters(ctx context.Context) ([]Cluster, error) {
	var resp struct {
		Clusters []Cluster `json:"clusters"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/v1/clusters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clusters, nil
}

// ClusterByName looks up a secured cluster by name. The error lists the known
// names when no cluster matches.
func (c *Client) ClusterByName(ctx context.Context, name string) (*Cluster, error) {
	clusters, err := c.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(clusters))
	for i := range clusters {
		if clusters[i].Name == name {
			return &clusters[i], nil
		}
		names = append(names, clusters[i].Name)
	}
	sort.Strings(names)

	return nil, &ClusterNotFoundError{Name: name, Known: names}
}

// ClusterNotFoundError is returned when Central has no cluster of that name
type ClusterNotFoundError struct {
	Name  string
	Known []string
}

func (e *ClusterNotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("cluster %q is not registered with central (no clusters registered)", e.Name)
	}
	return fmt.Sprintf("cluster %q is not registered with central (known clusters: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ListInitBundles returns the names of existing init bundles
func (c *Client) ListInitBundles(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/cluster-init/init-bundles", nil, nil)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, item := range gjson.GetBytes(data, "items.#.name").Array() {
		names = append(names, item.String())
	}
	return names, nil
}

// GenerateInitBundle creates an init bundle and returns its kubectl Secrets.
// ErrAlreadyExists is returned when a bundle of that name exists.
func (c *Client) GenerateInitBundle(ctx context.Context, name string) (*InitBundle, error) {
	data, err := c.do(ctx, http.MethodPost, "/v1/cluster-init/init-bundles", map[string]string{"name": name}, nil)
	if err != nil {
		if isAlreadyExists(err) {
			return nil, fmt.Errorf("init bundle %q: %w", name, ErrAlreadyExists)
		}
		return nil, err
	}

	res := gjson.ParseBytes(data)
	encoded := res.Get("kubectlBundle").String()
	if encoded == "" {
		return nil, fmt.Errorf("central returned init bundle %q without kubectl bundle", name)
	}

	bundle, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode init bundle %q: %w", name, err)
	}

	return &InitBundle{
		ID:            res.Get("meta.id").String(),
		Name:          res.Get("meta.name").String(),
		KubectlBundle: bundle,
	}, nil
}
