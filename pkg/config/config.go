/*
Author: Amjad Yaseen
Email: ayaseen@redhat.com
Date: 2025-05-02

This file defines the runtime configuration shared by all commands. It:

- Binds command line flags, environment variables and an optional config file through viper
- Falls back to the exports persisted in the env file (~/.bashrc by default)
- Normalizes the Central endpoint and validates timeouts
*/

package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration keys, shared between flags and viper
const (
	KeyNamespace     = "namespace"
	KeyRoxEndpoint   = "rox-endpoint"
	KeyRoxAPIToken   = "rox-api-token"
	KeyAdminPassword = "admin-password"
	KeyIssuerName    = "issuer-name"
	KeyEnvFile       = "env-file"
	KeyKubeconfig    = "kubeconfig"
	KeyTimeout       = "timeout"
	KeyPollInterval  = "poll-interval"
	KeyLogFormat     = "log-format"
	KeyVerbose       = "verbose"
	KeyNoProgress    = "no-progress"
	KeyClusterName   = "cluster-name"
)

// Environment variables persisted to, and read back from, the env file
const (
	EnvRoxEndpoint   = "ROX_ENDPOINT"
	EnvRoxAPIToken   = "ROX_API_TOKEN"
	EnvAdminPassword = "ADMIN_PASSWORD"
	EnvNamespace     = "NAMESPACE"
	EnvIssuerName    = "CERT_MANAGER_ISSUER_NAME"
	EnvEnvFile       = "RHACS_ENV_FILE"
	EnvKubeconfig    = "KUBECONFIG"
	EnvClusterName   = "CLUSTER_NAME"
)

// Defaults
const (
	DefaultNamespace    = "stackrox"
	DefaultIssuerName   = "rhacs-selfsigned-ca"
	DefaultTimeout      = 15 * time.Minute
	DefaultPollInterval = 10 * time.Second
	DefaultCentralPort  = "443"
)

var envBindings = map[string]string{
	KeyNamespace:     EnvNamespace,
	KeyRoxEndpoint:   EnvRoxEndpoint,
	KeyRoxAPIToken:   EnvRoxAPIToken,
	KeyAdminPassword: EnvAdminPassword,
	KeyIssuerName:    EnvIssuerName,
	KeyEnvFile:       EnvEnvFile,
	KeyKubeconfig:    EnvKubeconfig,
	KeyClusterName:   EnvClusterName,
}

// Config is the resolved configuration of a command run
type Config struct {
	// Namespace is where Central and SecuredCluster are installed
	Namespace string

	// RoxEndpoint is the Central API address as host:port
	RoxEndpoint string

	// RoxAPIToken authenticates against Central with a bearer token
	RoxAPIToken string

	// AdminPassword authenticates the admin user with basic auth
	AdminPassword string

	// IssuerName is the cert-manager ClusterIssuer signing the Central certificate
	IssuerName string

	// EnvFile is the shell rc file where exports are persisted
	EnvFile string

	// Kubeconfig overrides the kube config lookup
	Kubeconfig string

	// ClusterName is the name the SecuredCluster registers under
	ClusterName string

	// Timeout bounds every individual wait
	Timeout time.Duration

	// PollInterval is the fixed sleep between polls
	PollInterval time.Duration

	LogFormat  string
	Verbose    bool
	NoProgress bool
}

// BindEnv binds every key to its environment variable
func BindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// Load resolves the configuration from viper. Values persisted in the env file
// have the lowest priority, below flags, environment and the config file.
func Load(v *viper.Viper) (*Config, error) {
	envFile := v.GetString(KeyEnvFile)
	if envFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		envFile = filepath.Join(home, ".bashrc")
	}

	persisted, err := ReadEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	for key, env := range envBindings {
		if value, ok := persisted[env]; ok && value != "" {
			v.SetDefault(key, value)
		}
	}

	cfg := &Config{
		Namespace:     v.GetString(KeyNamespace),
		RoxAPIToken:   v.GetString(KeyRoxAPIToken),
		AdminPassword: v.GetString(KeyAdminPassword),
		IssuerName:    v.GetString(KeyIssuerName),
		EnvFile:       envFile,
		Kubeconfig:    v.GetString(KeyKubeconfig),
		ClusterName:   v.GetString(KeyClusterName),
		Timeout:       v.GetDuration(KeyTimeout),
		PollInterval:  v.GetDuration(KeyPollInterval),
		LogFormat:     v.GetString(KeyLogFormat),
		Verbose:       v.GetBool(KeyVerbose),
		NoProgress:    v.GetBool(KeyNoProgress),
	}

	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.IssuerName == "" {
		cfg.IssuerName = DefaultIssuerName
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	if endpoint := v.GetString(KeyRoxEndpoint); endpoint != "" {
		cfg.RoxEndpoint, err = NormalizeEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values no command can work with
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be greater than or equal to 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}
	if c.Timeout > 0 && c.PollInterval > c.Timeout {
		return fmt.Errorf("poll interval %s must not exceed timeout %s", c.PollInterval, c.Timeout)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be one of: console, json)", c.LogFormat)
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	return nil
}

// RequireEndpoint returns an error when no Central endpoint is known
func (c *Config) RequireEndpoint() error {
	if c.RoxEndpoint == "" {
		return fmt.Errorf("%s is not set: run 'rhacs-runner setup' or pass --%s", EnvRoxEndpoint, KeyRoxEndpoint)
	}
	return nil
}

// RequireToken returns an error when no Central API token is known
func (c *Config) RequireToken() error {
	if err := c.RequireEndpoint(); err != nil {
		return err
	}
	if c.RoxAPIToken == "" {
		return fmt.Errorf("%s is not set: run 'rhacs-runner setup' or pass --%s", EnvRoxAPIToken, KeyRoxAPIToken)
	}
	return nil
}

// Exports returns the variables persisted by setup
func (c *Config) Exports() map[string]string {
	exports := map[string]string{
		EnvNamespace: c.Namespace,
	}
	if c.RoxEndpoint != "" {
		exports[EnvRoxEndpoint] = c.RoxEndpoint
	}
	if c.RoxAPIToken != "" {
		exports[EnvRoxAPIToken] = c.RoxAPIToken
	}
	if c.AdminPassword != "" {
		exports[EnvAdminPassword] = c.AdminPassword
	}
	return exports
}

// NormalizeEndpoint accepts host, host:port or https://host[:port] and returns host:port
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		if u.Scheme != "https" {
			return "", fmt.Errorf("invalid endpoint %q: only https is supported", endpoint)
		}
		endpoint = u.Host
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		host, port = endpoint, DefaultCentralPort
	}
	if host == "" || strings.ContainsAny(host, "/ ") {
		return "", fmt.Errorf("invalid endpoint %q", endpoint)
	}

	return net.JoinHostPort(host, port), nil
}
