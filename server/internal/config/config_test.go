package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "mncserver.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", cfg.Server.GRPCPort, DefaultGRPCPort)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Board.TTL != DefaultBoardTTL || cfg.Server.Board.Prefix != "/mon/" {
		t.Errorf("board: got %+v", cfg.Server.Board)
	}
	if got := cfg.Server.Status.Key(); got != "/mon/status/1" {
		t.Errorf("status key: got %q, want /mon/status/1", got)
	}
	if len(cfg.Etcd.Endpoints) != 1 || cfg.Etcd.Endpoints[0] != "localhost:2379" {
		t.Errorf("etcd endpoints: got %v", cfg.Etcd.Endpoints)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  auth:
    mode: apikey
    key_env: MNC_KEY
    header: X-MNC-Key
  board:
    prefix: /mon/ant/
    ttl: 2m
  status:
    num: 2
    stale: 10m
  alerts:
    rules:
      - name: not-observing
        condition: "status == 0"
        severity: critical
        cooldown: 30m
      - name: rf-low
        prefix: /mon/ant/
        condition: "rf_pwr < -40"
        severity: warning
    webhooks:
      - type: slack
        url_env: SLACK_URL
etcd:
  endpoints: ["etcdv3service.sas.pvt:2379"]
cnf:
  remote: true
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 || s.HTTPPort != 9091 {
		t.Errorf("ports: got %d/%d", s.GRPCPort, s.HTTPPort)
	}
	if s.Auth.EffectiveHeader() != "x-mnc-key" {
		t.Errorf("header: got %q, want x-mnc-key", s.Auth.EffectiveHeader())
	}
	if s.Board.TTL != 2*time.Minute || s.Board.Prefix != "/mon/ant/" {
		t.Errorf("board: got %+v", s.Board)
	}
	if s.Status.Key() != "/mon/status/2" || s.Status.Stale != 10*time.Minute {
		t.Errorf("status: got %+v", s.Status)
	}
	if len(s.Alerts.Rules) != 2 {
		t.Fatalf("rules: got %d, want 2", len(s.Alerts.Rules))
	}
	if got := s.Alerts.Rules[0].EffectivePrefix(); got != "/mon/status/" {
		t.Errorf("rule 0 prefix: got %q", got)
	}
	if got := s.Alerts.Rules[1].EffectivePrefix(); got != "/mon/ant/" {
		t.Errorf("rule 1 prefix: got %q", got)
	}
	if !cfg.Cnf.Remote {
		t.Error("cnf.remote: got false")
	}
}

func TestLoad_DefaultHeader(t *testing.T) {
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: K
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h := cfg.Server.Auth.EffectiveHeader(); h != "x-api-key" {
		t.Errorf("EffectiveHeader: got %q, want x-api-key", h)
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("MNC_TEST_KEY", "secret")
	a := AuthConfig{KeyEnv: "MNC_TEST_KEY"}
	if a.Key() != "secret" {
		t.Errorf("Key: got %q, want secret", a.Key())
	}
	if (AuthConfig{}).Key() != "" {
		t.Error("Key with no key_env should be empty")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"grpc port", "server:\n  grpc_port: 70000\n", "grpc_port"},
		{"http port", "server:\n  http_port: -1\n", "http_port"},
		{"auth mode", "server:\n  auth:\n    mode: mtls\n", "auth.mode"},
		{"board prefix", "server:\n  board:\n    prefix: mon\n", "board.prefix"},
		{"status num", "server:\n  status:\n    num: 0\n", "status.num"},
		{"rule name", "server:\n  alerts:\n    rules:\n      - condition: \"status == 0\"\n", "name is required"},
		{"rule condition", "server:\n  alerts:\n    rules:\n      - name: x\n        condition: \"status\"\n", "field op value"},
		{"rule severity", "server:\n  alerts:\n    rules:\n      - name: x\n        condition: \"a > 1\"\n        severity: loud\n", "severity"},
		{"webhook type", "server:\n  alerts:\n    webhooks:\n      - type: pagerduty\n", "webhooks[0]"},
		{"etcd endpoint", "etcd:\n  endpoints: [\"nohost\"]\n", "endpoints[0]"},
		{"log level", "log:\n  level: loud\n", "level"},
		{"yaml", "server: [", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
