package central

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"

	"github.com/tidwall/gjson"
)

const scanConfigurationsPath = "/v2/compliance/scan/configurations"

// Schedule interval types understood by Central
const (
	IntervalDaily   = "DAILY"
	IntervalWeekly  = "WEEKLY"
	IntervalMonthly = "MONTHLY"
)

// DaysOfWeek lists days, 0 is Sunday
type DaysOfWeek struct {
	Days []int32 `json:"days"`
}

// DaysOfMonth lists days of the month, starting at 1
type DaysOfMonth struct {
	Days []int32 `json:"days"`
}

// Schedule is when a recurring scan runs
type Schedule struct {
	IntervalType string       `json:"intervalType"`
	Hour         int32        `json:"hour"`
	Minute       int32        `json:"minute"`
	DaysOfWeek   *DaysOfWeek  `json:"daysOfWeek,omitempty"`
	DaysOfMonth  *DaysOfMonth `json:"daysOfMonth,omitempty"`
}

// ScanConfig is the body of a compliance scan configuration
type ScanConfig struct {
	OneTimeScan  bool      `json:"oneTimeScan"`
	Profiles     []string  `json:"profiles"`
	ScanSchedule *Schedule `json:"scanSchedule,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// ScanConfiguration is a compliance scan configuration request
type ScanConfiguration struct {
	ID         string     `json:"id,omitempty"`
	ScanName   string     `json:"scanName"`
	ScanConfig ScanConfig `json:"scanConfig"`
	Clusters   []string   `json:"clusters"`
}

// ScanClusterStatus is the per-cluster state of a scan configuration
type ScanClusterStatus struct {
	ClusterID   string   `json:"clusterId"`
	ClusterName string   `json:"clusterName"`
	Errors      []string `json:"errors,omitempty"`
}

// ScanConfigurationStatus is a scan configuration as listed by Central
type ScanConfigurationStatus struct {
	ID              string              `json:"id"`
	ScanName        string              `json:"scanName"`
	ScanConfig      ScanConfig          `json:"scanConfig"`
	ClusterStatus   []ScanClusterStatus `json:"clusterStatus"`
	LastUpdatedTime string              `json:"lastUpdatedTime,omitempty"`
	ModifiedBy      struct {
		Name string `json:"name"`
	} `json:"modifiedBy"`
}

// ClusterIDs returns the ids of the clusters the configuration targets
func (s *ScanConfigurationStatus) ClusterIDs() []string {
	ids := make([]string, 0, len(s.ClusterStatus))
	for _, cs := range s.ClusterStatus {
		ids = append(ids, cs.ClusterID)
	}
	return ids
}

// ListScanConfigurations returns every compliance scan configuration
func (c *Client) ListScanConfigurations(ctx context.Context) ([]ScanConfigurationStatus, error) {
	var resp struct {
		Configurations []ScanConfigurationStatus `json:"configurations"`
	}
	q := url.Values{"pagination.limit": {"1000"}}
	if _, err := c.do(ctx, http.MethodGet, scanConfigurationsPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Configurations, nil
}

// ScanConfigurationByName returns the configuration with that scan name, or nil
func (c *Client) ScanConfigurationByName(ctx context.Context, name string) (*ScanConfigurationStatus, error) {
	configs, err := c.ListScanConfigurations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].ScanName == name {
			return &configs[i], nil
		}
	}
	return nil, nil
}

// CreateScanConfiguration creates a configuration and returns its id
func (c *Client) CreateScanConfiguration(ctx context.Context, cfg ScanConfiguration) (string, error) {
	cfg.ID = ""
	data, err := c.do(ctx, http.MethodPost, scanConfigurationsPath, cfg, nil)
	if err != nil {
		if isAlreadyExists(err) {
			return "", fmt.Errorf("scan configuration %q: %w", cfg.ScanName, ErrAlreadyExists)
		}
		return "", err
	}
	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		return "", fmt.Errorf("central did not return an id for scan configuration %q", cfg.ScanName)
	}
	return id, nil
}

// UpdateScanConfiguration replaces the configuration with the given id
func (c *Client) UpdateScanConfiguration(ctx context.Context, id string, cfg ScanConfiguration) error {
	cfg.ID = id
	_, err := c.do(ctx, http.MethodPut, scanConfigurationsPath+"/"+url.PathEscape(id), cfg, nil)
	return err
}

// RunScanConfiguration triggers an immediate run
func (c *Client) RunScanConfiguration(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, scanConfigurationsPath+"/"+url.PathEscape(id)+"/run", struct{}{}, nil)
	return err
}

// DeleteScanConfiguration removes the configuration with the given id
func (c *Client) DeleteScanConfiguration(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, scanConfigurationsPath+"/"+url.PathEscape(id), nil, nil)
	return err
}

// EnsureScanConfiguration creates the configuration, or updates the existing one
// of the same scan name when profiles, schedule or clusters differ. It returns
// the id and whether anything changed.
func (c *Client) EnsureScanConfiguration(ctx context.Context, desired ScanConfiguration) (string, bool, error) {
	existing, err := c.ScanConfigurationByName(ctx, desired.ScanName)
	if err != nil {
		return "", false, fmt.Errorf("failed to list scan configurations: %w", err)
	}

	if existing == nil {
		id, err := c.CreateScanConfiguration(ctx, desired)
		if err != nil {
			return "", false, err
		}
		return id, true, nil
	}

	if scanConfigMatches(existing, desired) {
		return existing.ID, false, nil
	}

	if err := c.UpdateScanConfiguration(ctx, existing.ID, desired); err != nil {
		return "", false, err
	}
	return existing.ID, true, nil
}

func scanConfigMatches(existing *ScanConfigurationStatus, desired ScanConfiguration) bool {
	if existing.ScanConfig.OneTimeScan != desired.ScanConfig.OneTimeScan {
		return false
	}
	if existing.ScanConfig.Description != desired.ScanConfig.Description {
		return false
	}
	if !sameSet(existing.ScanConfig.Profiles, desired.ScanConfig.Profiles) {
		return false
	}
	if !sameSet(existing.ClusterIDs(), desired.Clusters) {
		return false
	}
	return reflect.DeepEqual(existing.ScanConfig.ScanSchedule, desired.ScanConfig.ScanSchedule)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	return reflect.DeepEqual(x, y)
}
