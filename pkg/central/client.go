/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-03

This file implements the HTTP client for the RHACS Central REST API. It:

- Builds an HTTP client with basic or bearer authentication and optional TLS verification
- Encodes JSON requests and decodes JSON responses
- Maps non-2xx responses to APIError values carrying the status code and body
- Classifies errors that are worth retrying
*/

package central

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	promconfig "github.com/prometheus/common/config"
	"github.com/tidwall/gjson"
)

// DefaultUsername is the built-in Central administrator
const DefaultUsername = "admin"

// ErrAlreadyExists is returned when Central refuses to create a duplicate object
var ErrAlreadyExists = errors.New("already exists")

// Options configures a Central client
type Options struct {
	// Endpoint is the Central address as host:port
	Endpoint string

	// Username and Password are used for basic auth when no Token is set
	Username string
	Password string

	// Token is an API token sent as a bearer credential
	Token string

	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool

	// Timeout bounds a single request
	Timeout time.Duration
}

// Client talks to the Central REST API
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// APIError is returned for any non-2xx response
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error returns the formatted error message
func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if m := gjson.Get(e.Body, "message"); m.Exists() {
		msg = m.String()
	} else if m := gjson.Get(e.Body, "error"); m.Exists() {
		msg = m.String()
	}
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return fmt.Sprintf("%s %s returned HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// New creates a Central client
func New(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("central endpoint cannot be empty")
	}

	base, err := url.Parse("https://" + opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid central endpoint %q: %w", opts.Endpoint, err)
	}

	httpConfig := promconfig.HTTPClientConfig{
		TLSConfig: promconfig.TLSConfig{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
		FollowRedirects: true,
		EnableHTTP2:     true,
	}

	switch {
	case opts.Token != "":
		httpConfig.Authorization = &promconfig.Authorization{
			Type:        "Bearer",
			Credentials: promconfig.Secret(opts.Token),
		}
	case opts.Password != "":
		username := opts.Username
		if username == "" {
			username = DefaultUsername
		}
		httpConfig.BasicAuth = &promconfig.BasicAuth{
			Username: username,
			Password: promconfig.Secret(opts.Password),
		}
	}

	httpClient, err := promconfig.NewClientFromConfig(httpConfig, "rhacs-central")
	if err != nil {
		return nil, fmt.Errorf("failed to create central HTTP client: %w", err)
	}
	if opts.Timeout > 0 {
		httpClient.Timeout = opts.Timeout
	}

	return &Client{baseURL: base, http: httpClient}, nil
}

// Endpoint returns the host:port the client talks to
func (c *Client) Endpoint() string {
	return c.baseURL.Host
}

// do sends a request and returns the raw response body. When out is non-nil
// the body is decoded into it.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) ([]byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request for %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, &APIError{Method: method, Path: ref.Path, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return data, fmt.Errorf("failed to decode response of %s %s: %w", method, path, err)
		}
	}

	return data, nil
}

// IsRetryable reports whether a request failure is transient: transport errors,
// throttling and server side errors are; authentication and validation errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

func isAlreadyExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict ||
		strings.Contains(strings.ToLower(apiErr.Body), "already exists")
}
