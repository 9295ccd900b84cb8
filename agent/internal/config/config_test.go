package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
monitor:
  period: 60s
  window: 120s
  elevation_max_deg: 0.25
  dm_max: 1500
etcd:
  endpoints: ["etcdv3service.sas.pvt:2379"]
influx:
  endpoint: "http://localhost:8086"
  database: dsa110
  auth:
    mode: basic
    username: root
    password_env: INFLUX_PASSWORD
publish:
  status_num: 2
report:
  enabled: true
  path: /var/lib/statusmon/report.db
log:
  level: debug
`
	cfg := loadFromString(t, yaml)

	if cfg.Monitor.Period != 60*time.Second {
		t.Errorf("period: got %v", cfg.Monitor.Period)
	}
	if cfg.Monitor.Window != 120*time.Second {
		t.Errorf("window: got %v", cfg.Monitor.Window)
	}
	if cfg.Monitor.ElevationMaxDeg != 0.25 {
		t.Errorf("elevation_max_deg: got %v", cfg.Monitor.ElevationMaxDeg)
	}
	if cfg.Monitor.CoreAntennaLimit != DefaultCoreAntennaLimit {
		t.Errorf("core_antenna_limit: got %d", cfg.Monitor.CoreAntennaLimit)
	}
	if cfg.Etcd.Endpoints[0] != "etcdv3service.sas.pvt:2379" {
		t.Errorf("etcd endpoints: got %v", cfg.Etcd.Endpoints)
	}
	if cfg.Etcd.DialTimeout == 0 {
		t.Error("etcd dial_timeout default not applied")
	}
	if cfg.Publish.StatusNum != 2 {
		t.Errorf("status_num: got %d", cfg.Publish.StatusNum)
	}
	if !cfg.Report.Enabled || cfg.Report.Schedule != DefaultReportSchedule {
		t.Errorf("report: got %+v", cfg.Report)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "{}")

	if cfg.Monitor.Period != DefaultPeriod {
		t.Errorf("default period: got %v, want %v", cfg.Monitor.Period, DefaultPeriod)
	}
	if cfg.Monitor.Window != DefaultWindow {
		t.Errorf("default window: got %v, want %v", cfg.Monitor.Window, DefaultWindow)
	}
	if cfg.Monitor.DMMax != DefaultDMMax {
		t.Errorf("default dm_max: got %v", cfg.Monitor.DMMax)
	}
	if cfg.Influx.Database != DefaultInfluxDatabase {
		t.Errorf("default database: got %q", cfg.Influx.Database)
	}
	if cfg.Publish.StatusNum != DefaultStatusNum {
		t.Errorf("default status_num: got %d", cfg.Publish.StatusNum)
	}
	if cfg.Metrics.Listen != DefaultMetricsListen {
		t.Errorf("default metrics listen: got %q", cfg.Metrics.Listen)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative period", "monitor: {period: -1s}"},
		{"zero dm_max", "monitor: {dm_max: -5}"},
		{"bad etcd endpoint", "etcd: {endpoints: [nope]}"},
		{"unknown auth mode", "influx: {auth: {mode: magictoken}}"},
		{"apikey without header", "influx: {auth: {mode: apikey, key_env: K}}"},
		{"zero status_num", "publish: {status_num: -1}"},
		{"report without path", "report: {enabled: true, path: \"\"}"},
		{"bad log level", "log: {level: loud}"},
		{"malformed", "monitor: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tt.yaml); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestAuthConfig_Secrets(t *testing.T) {
	t.Setenv("TEST_INFLUX_KEY", "supersecret")
	t.Setenv("TEST_INFLUX_PW", "pw")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_INFLUX_KEY", PasswordEnv: "TEST_INFLUX_PW"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key: got %q", got)
	}
	if got := a.Password(); got != "pw" {
		t.Errorf("Password: got %q", got)
	}
	if got := (AuthConfig{}).Token(); got != "" {
		t.Errorf("Token with no env: got %q", got)
	}
}

func TestWatch_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statusmon.yaml")
	if err := os.WriteFile(path, []byte("monitor: {dm_max: 1000}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Config, 4)
	errc := make(chan error, 1)
	go func() { errc <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid write is skipped, the following valid one is delivered.
	if err := os.WriteFile(path, []byte("monitor: {dm_max: -1}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * settle)
	if err := os.WriteFile(path, []byte("monitor: {dm_max: 900}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Monitor.DMMax != 900 {
			t.Errorf("reloaded dm_max = %v, want 900", c.Monitor.DMMax)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

// --- helpers ---

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statusmon.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
