package store

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from etcdConfig.yml.
const (
	DefaultEtcdEndpoint = "localhost:2379"
	DefaultDialTimeout  = 5 * time.Second
)

// EtcdConfig is the client side of etcdConfig.yml.
type EtcdConfig struct {
	// Endpoints are host:port pairs of the cluster members.
	Endpoints []string `yaml:"endpoints"`

	DialTimeout time.Duration `yaml:"dial_timeout"`

	// RequestTimeout bounds each Get/Put/Delete. Zero leaves deadlines to
	// the caller's context.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// WaitForConnection makes DialEtcd fail if no endpoint answers within
	// DialTimeout instead of connecting lazily.
	WaitForConnection bool `yaml:"wait_for_connection"`

	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	// ClientLogLevel enables the etcd client's own logging (debug, info,
	// warn, error). Empty disables it.
	ClientLogLevel string `yaml:"client_log_level"`
}

// LoadEtcdConfig reads and validates an etcdConfig.yml file.
func LoadEtcdConfig(path string) (EtcdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EtcdConfig{}, fmt.Errorf("store: read etcd config %q: %w", path, err)
	}
	return ParseEtcdConfig(data)
}

// ParseEtcdConfig parses etcdConfig.yml content.
func ParseEtcdConfig(data []byte) (EtcdConfig, error) {
	var cfg EtcdConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EtcdConfig{}, fmt.Errorf("store: parse etcd config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return EtcdConfig{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *EtcdConfig) ApplyDefaults() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []string{DefaultEtcdEndpoint}
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
}

// Validate checks endpoints and timeouts.
func (c *EtcdConfig) Validate() error {
	for i, ep := range c.Endpoints {
		host, port, err := net.SplitHostPort(ep)
		if err != nil {
			return fmt.Errorf("store: endpoints[%d] %q: %w", i, ep, err)
		}
		if host == "" || port == "" {
			return fmt.Errorf("store: endpoints[%d] %q: host and port are required", i, ep)
		}
	}
	if c.DialTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("store: timeouts must not be negative")
	}
	return nil
}
