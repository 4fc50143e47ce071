package central

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricsPrefix is shared by every metric Central exports
const MetricsPrefix = "rox_central_"

// CustomMetricPrefixes are the family prefixes of the custom metric categories
var CustomMetricPrefixes = []string{
	"rox_central_image_vuln_",
	"rox_central_node_vuln_",
	"rox_central_policy_violation_",
}

// Metrics scrapes the Central /metrics endpoint and parses the text exposition
func (c *Client) Metrics(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	data, err := c.do(ctx, http.MethodGet, "/metrics", nil, nil)
	if err != nil {
		return nil, err
	}
	return ParseMetrics(data)
}

// ParseMetrics parses Prometheus text exposition format
func ParseMetrics(data []byte) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}
	return families, nil
}

// FamiliesWithPrefix returns the sorted names of the families starting with prefix
func FamiliesWithPrefix(families map[string]*dto.MetricFamily, prefix string) []string {
	var names []string
	for name := range families {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SeriesCount returns the number of samples across the named families
func SeriesCount(families map[string]*dto.MetricFamily, names []string) int {
	count := 0
	for _, name := range names {
		if mf, ok := families[name]; ok {
			count += len(mf.GetMetric())
		}
	}
	return count
}

// HasFamilyPrefix reports whether any family name starts with prefix
func HasFamilyPrefix(families map[string]*dto.MetricFamily, prefix string) bool {
	for name := range families {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
