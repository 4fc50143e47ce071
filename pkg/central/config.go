package central

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// MetricDescriptor names the labels a custom metric is aggregated by
type MetricDescriptor struct {
	Labels []string `json:"labels"`
}

// MetricCategory configures one family of custom metrics
type MetricCategory struct {
	GatheringPeriodMinutes int                         `json:"gatheringPeriodMinutes"`
	Descriptors            map[string]MetricDescriptor `json:"descriptors,omitempty"`
}

// CustomMetrics is the privateConfig.metrics section of the Central config
type CustomMetrics struct {
	ImageVulnerabilities *MetricCategory `json:"imageVulnerabilities,omitempty"`
	NodeVulnerabilities  *MetricCategory `json:"nodeVulnerabilities,omitempty"`
	PolicyViolations     *MetricCategory `json:"policyViolations,omitempty"`
}

// DefaultCustomMetrics returns the metrics the installer enables
func DefaultCustomMetrics() CustomMetrics {
	return CustomMetrics{
		ImageVulnerabilities: &MetricCategory{
			GatheringPeriodMinutes: 1,
			Descriptors: map[string]MetricDescriptor{
				"cve_severity":           {Labels: []string{"Cluster", "Namespace", "Severity"}},
				"deployment_severity":    {Labels: []string{"Cluster", "Namespace", "Deployment", "Severity"}},
				"namespace_severity":     {Labels: []string{"Cluster", "Namespace", "Severity"}},
				"cve_fixable_severity":   {Labels: []string{"Cluster", "Severity", "IsFixable"}},
				"component_cve_severity": {Labels: []string{"Component", "Severity"}},
			},
		},
		PolicyViolations: &MetricCategory{
			GatheringPeriodMinutes: 1,
			Descriptors: map[string]MetricDescriptor{
				"deployment_severity": {Labels: []string{"Cluster", "Namespace", "Deployment", "Severity"}},
				"namespace_severity":  {Labels: []string{"Cluster", "Namespace", "Severity"}},
			},
		},
		NodeVulnerabilities: &MetricCategory{
			GatheringPeriodMinutes: 1,
			Descriptors: map[string]MetricDescriptor{
				"node_severity": {Labels: []string{"Cluster", "Node", "Severity"}},
			},
		},
	}
}

// GetConfig returns the full Central configuration as a JSON object
func (c *Client) GetConfig(ctx context.Context) (map[string]interface{}, error) {
	cfg := map[string]interface{}{}
	if _, err := c.do(ctx, http.MethodGet, "/v1/config", nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PutConfig replaces the Central configuration
func (c *Client) PutConfig(ctx context.Context, cfg map[string]interface{}) error {
	_, err := c.do(ctx, http.MethodPut, "/v1/config", map[string]interface{}{"config": cfg}, nil)
	return err
}

// EnsureCustomMetrics sets privateConfig.metrics, keeping every other setting.
// It reports whether Central had to be updated.
func (c *Client) EnsureCustomMetrics(ctx context.Context, metrics CustomMetrics) (bool, error) {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read central config: %w", err)
	}

	desired, err := toJSONObject(metrics)
	if err != nil {
		return false, err
	}

	current, found, err := unstructured.NestedMap(cfg, "privateConfig", "metrics")
	if err != nil {
		return false, fmt.Errorf("unexpected privateConfig.metrics in central config: %w", err)
	}
	if found && reflect.DeepEqual(current, desired) {
		return false, nil
	}

	if err := unstructured.SetNestedMap(cfg, desired, "privateConfig", "metrics"); err != nil {
		return false, fmt.Errorf("failed to set privateConfig.metrics: %w", err)
	}
	if err := c.PutConfig(ctx, cfg); err != nil {
		return false, fmt.Errorf("failed to update central config: %w", err)
	}

	return true, nil
}

// toJSONObject converts v into the generic form json.Unmarshal produces, so it
// compares equal to values read back from Central.
func toJSONObject(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return out, nil
}
