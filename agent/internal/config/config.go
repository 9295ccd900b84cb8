package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dsa110/mnc/pkg/logging"
	"github.com/dsa110/mnc/pkg/store"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPeriod           = 160 * time.Second
	DefaultWindow           = 160 * time.Second
	DefaultElevationMaxDeg  = 0.5
	DefaultDMMax            = 1101.05
	DefaultCoreAntennaLimit = 64
	DefaultStatusNum        = 1
	DefaultBufferSize       = 100
	DefaultInfluxEndpoint   = "http://influxdbservice.sas.pvt:8086"
	DefaultInfluxDatabase   = "dsa110"
	DefaultInfluxTimeout    = 30 * time.Second
	DefaultReportSchedule   = "5 0 * * *"
	DefaultReportPath       = "statusmon.db"
	DefaultMetricsListen    = ":9108"
)

// Config is the statusmon configuration. Fields map 1:1 to
// statusmon.example.yaml.
type Config struct {
	Monitor MonitorConfig    `yaml:"monitor"`
	Etcd    store.EtcdConfig `yaml:"etcd"`
	Influx  InfluxConfig     `yaml:"influx"`
	Publish PublishConfig    `yaml:"publish"`
	Report  ReportConfig     `yaml:"report"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Log     logging.Config   `yaml:"log"`
}

// MonitorConfig holds the evaluation cadence and the criterion thresholds.
// These fields are hot-reloadable.
type MonitorConfig struct {
	// Period is the time between the starts of consecutive evaluations.
	Period time.Duration `yaml:"period"`

	// Window is the trailing span each query covers.
	Window time.Duration `yaml:"window"`

	// ElevationMaxDeg is the largest acceptable RMS deviation of core
	// antenna elevation from the median, in degrees.
	ElevationMaxDeg float64 `yaml:"elevation_max_deg"`

	// DMMax is the configured maximum dispersion measure. The search
	// passes when the mean searched DM is at least half of it.
	DMMax float64 `yaml:"dm_max"`

	// CoreAntennaLimit: antennas numbered below it form the core array.
	CoreAntennaLimit int `yaml:"core_antenna_limit"`
}

// InfluxConfig locates the time-series database holding antmon, t1mon and
// t2mon.
type InfluxConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
	Auth     AuthConfig    `yaml:"auth"`
	TLS      TLSConfig     `yaml:"tls"`
}

// AuthConfig specifies how the agent authenticates to the database.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// TLSConfig holds TLS dial options for the database.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// PublishConfig controls where results are written.
type PublishConfig struct {
	// StatusNum selects the key /mon/status/<status_num>.
	StatusNum int `yaml:"status_num"`

	// BufferSize is the number of results held while etcd is unreachable.
	BufferSize int `yaml:"buffer_size"`
}

// ReportConfig controls the daily observing-fraction report.
type ReportConfig struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a five-field cron expression in UTC.
	Schedule string `yaml:"schedule"`

	// Path is the SQLite database file holding report history.
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address serving /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates config YAML.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.Etcd.ApplyDefaults()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			Period:           DefaultPeriod,
			Window:           DefaultWindow,
			ElevationMaxDeg:  DefaultElevationMaxDeg,
			DMMax:            DefaultDMMax,
			CoreAntennaLimit: DefaultCoreAntennaLimit,
		},
		Influx: InfluxConfig{
			Endpoint: DefaultInfluxEndpoint,
			Database: DefaultInfluxDatabase,
			Timeout:  DefaultInfluxTimeout,
		},
		Publish: PublishConfig{
			StatusNum:  DefaultStatusNum,
			BufferSize: DefaultBufferSize,
		},
		Report: ReportConfig{
			Schedule: DefaultReportSchedule,
			Path:     DefaultReportPath,
		},
		Metrics: MetricsConfig{Listen: DefaultMetricsListen},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	m := cfg.Monitor
	if m.Period <= 0 {
		return fmt.Errorf("monitor.period must be positive")
	}
	if m.Window <= 0 {
		return fmt.Errorf("monitor.window must be positive")
	}
	if m.ElevationMaxDeg <= 0 {
		return fmt.Errorf("monitor.elevation_max_deg must be positive")
	}
	if m.DMMax <= 0 {
		return fmt.Errorf("monitor.dm_max must be positive")
	}
	if m.CoreAntennaLimit <= 0 {
		return fmt.Errorf("monitor.core_antenna_limit must be positive")
	}
	if err := cfg.Etcd.Validate(); err != nil {
		return err
	}
	if cfg.Influx.Endpoint == "" {
		return fmt.Errorf("influx.endpoint is required")
	}
	if cfg.Influx.Database == "" {
		return fmt.Errorf("influx.database is required")
	}
	switch cfg.Influx.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("influx.auth: unknown mode %q", cfg.Influx.Auth.Mode)
	}
	if cfg.Influx.Auth.Mode == "apikey" && cfg.Influx.Auth.Header == "" {
		return fmt.Errorf("influx.auth: apikey mode needs a header")
	}
	if cfg.Publish.StatusNum <= 0 {
		return fmt.Errorf("publish.status_num must be positive")
	}
	if cfg.Publish.BufferSize <= 0 {
		return fmt.Errorf("publish.buffer_size must be positive")
	}
	if cfg.Report.Enabled && cfg.Report.Path == "" {
		return fmt.Errorf("report.path is required when the report is enabled")
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}
