package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEtcdConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etcdConfig.yml")
	if err := os.WriteFile(path, []byte("endpoints: [192.168.1.132:2379]\nrequest_timeout: 2s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadEtcdConfig(path)
	if err != nil {
		t.Fatalf("LoadEtcdConfig: %v", err)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0] != "192.168.1.132:2379" {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
	if cfg.DialTimeout != DefaultDialTimeout {
		t.Errorf("DialTimeout = %v, want default", cfg.DialTimeout)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
}

func TestParseEtcdConfig_Invalid(t *testing.T) {
	for _, in := range []string{
		"endpoints: [nohostport]",
		"endpoints: [':2379']",
		"dial_timeout: -1s",
		"endpoints: {",
	} {
		if _, err := ParseEtcdConfig([]byte(in)); err == nil {
			t.Errorf("ParseEtcdConfig(%q): expected error", in)
		}
	}
}

func TestParseEtcdConfig_Defaults(t *testing.T) {
	cfg, err := ParseEtcdConfig(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoints[0] != DefaultEtcdEndpoint {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
}

func TestKeys(t *testing.T) {
	if got := MonKey("ant", 24); got != "/mon/ant/24" {
		t.Errorf("MonKey = %q", got)
	}
	if got := CmdKey("ant", 0); got != "/cmd/ant/0" {
		t.Errorf("CmdKey = %q", got)
	}
	if got := CnfKey("corr"); got != "/cnf/corr" {
		t.Errorf("CnfKey = %q", got)
	}
	if got := StatusKey(1); got != "/mon/status/1" {
		t.Errorf("StatusKey = %q", got)
	}

	ns, ss, id, ok := SplitKey("/mon/ant/24")
	if !ok || ns != "mon" || ss != "ant" || id != "24" {
		t.Errorf("SplitKey = %q %q %q %v", ns, ss, id, ok)
	}
	if _, _, _, ok := SplitKey("/mon"); ok {
		t.Error("SplitKey(/mon) should fail")
	}
}
