package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dsa110/mnc/pkg/logging"
	"github.com/dsa110/mnc/pkg/store"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition over monitor points.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key
	// together with the key that fired it.
	Name string `yaml:"name"`

	// Prefix selects the keys the rule is evaluated against.
	// Defaults to /mon/status/.
	Prefix string `yaml:"prefix"`

	// Condition is a simple expression over one field of the payload:
	// "status == 0", "status1 != 1", "rf_pwr < -40".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// EffectivePrefix returns the configured prefix or the status namespace.
func (r AlertRule) EffectivePrefix() string {
	if r.Prefix != "" {
		return r.Prefix
	}
	return DefaultAlertPrefix
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultGRPCPort    = 50051
	DefaultHTTPPort    = 8080
	DefaultBoardTTL    = 10 * time.Minute
	DefaultStatusNum   = 1
	DefaultStatusStale = 480 * time.Second
	DefaultWatchPrefix = store.MonPrefix
	DefaultAlertPrefix = "/mon/status/"
)

// Config holds the server configuration. Fields map 1:1 to
// mncserver.example.yaml.
type Config struct {
	Server ServerConfig     `yaml:"server"`
	Etcd   store.EtcdConfig `yaml:"etcd"`
	Cnf    CnfConfig        `yaml:"cnf"`
	Log    logging.Config   `yaml:"log"`
}

// ServerConfig holds all listener and API settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC health service listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates gRPC calls and mutating
	// REST requests.
	Auth AuthConfig `yaml:"auth"`

	// Board controls the in-memory cache of monitor points.
	Board BoardConfig `yaml:"board"`

	// Status locates the health monitor's published verdict.
	Status StatusConfig `yaml:"status"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return strings.ToLower(a.Header)
	}
	return "x-api-key"
}

// BoardConfig controls the monitor-point cache.
type BoardConfig struct {
	// Prefix is the namespace mirrored into the board. Default: /mon/.
	Prefix string `yaml:"prefix"`

	// TTL is how long a key stays on the board after its last update.
	// Default: 10m.
	TTL time.Duration `yaml:"ttl"`
}

// StatusConfig locates the verdict written by statusmon.
type StatusConfig struct {
	// Num selects /mon/status/<num>.
	Num int `yaml:"num"`

	// Stale is the age past which a verdict is reported as stale and the
	// gRPC health service stops serving. Default: three evaluation periods.
	Stale time.Duration `yaml:"stale"`
}

// Key returns the store key of the verdict.
func (s StatusConfig) Key() string { return store.StatusKey(s.Num) }

// CnfConfig selects where subsystem configuration is read from.
type CnfConfig struct {
	// Remote reads payloads from /cnf/<subsystem> instead of the built-in table.
	Remote bool `yaml:"remote"`

	// KeysFile optionally overrides the subsystem-to-key table.
	KeysFile string `yaml:"keys_file"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates config YAML.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	cfg.Etcd.ApplyDefaults()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Board: BoardConfig{
				Prefix: DefaultWatchPrefix,
				TTL:    DefaultBoardTTL,
			},
			Status: StatusConfig{
				Num:   DefaultStatusNum,
				Stale: DefaultStatusStale,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if !strings.HasPrefix(s.Board.Prefix, "/") {
		return fmt.Errorf("server.board.prefix %q must start with /", s.Board.Prefix)
	}
	if s.Board.TTL < 0 {
		return fmt.Errorf("server.board.ttl must not be negative")
	}
	if s.Status.Num <= 0 {
		return fmt.Errorf("server.status.num must be positive")
	}
	if s.Status.Stale <= 0 {
		return fmt.Errorf("server.status.stale must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition must be \"field op value\"", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("server.alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	if err := cfg.Etcd.Validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}
