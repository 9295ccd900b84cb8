package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/dsa110/mnc/agent/internal/compute"
	"github.com/dsa110/mnc/agent/internal/config"
	"github.com/dsa110/mnc/agent/internal/tsdb"
	"github.com/dsa110/mnc/pkg/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// downQuerier fails every query, as when the database is unreachable.
type downQuerier struct{}

func (downQuerier) Query(context.Context, tsdb.Query) (tsdb.Result, error) {
	return nil, errors.New("influx down")
}

// loopFixture returns a config, its file path and a memory-backed store for
// runLoop. Metrics are disabled so no port is bound.
func loopFixture(t *testing.T) (*config.Config, string, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "statusmon.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  period: 50ms\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Metrics.Listen = ""
	cfg.Report.Enabled = true
	cfg.Report.Path = filepath.Join(dir, "report.db")

	st := store.New(store.NewMemory(time.Hour), store.WithLogger(quiet))
	t.Cleanup(func() { st.Close() })
	return cfg, path, st
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-01-01T12:00:00Z", want: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{in: "60310.5", want: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{in: "yesterday", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseTime(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTime: %v", err)
			}
			if d := got.Sub(tc.want); d > time.Millisecond || d < -time.Millisecond {
				t.Errorf("parseTime(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestThresholds(t *testing.T) {
	th := thresholds(config.MonitorConfig{
		Window: time.Minute, ElevationMaxDeg: 1, DMMax: 500, CoreAntennaLimit: 10,
	})
	if th.Window != time.Minute || th.ElevationMaxDeg != 1 || th.DMMax != 500 || th.CoreAntennaLimit != 10 {
		t.Errorf("thresholds = %+v", th)
	}
}

func TestRunLoop_BadScheduleLeavesNoWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg, path, st := loopFixture(t)
	cfg.Report.Schedule = "not a schedule"
	mon := compute.New(downQuerier{}, thresholds(cfg.Monitor), compute.WithLogger(quiet))

	if err := runLoop(context.Background(), cfg, path, mon, st); err == nil {
		t.Fatal("runLoop: want error for invalid report schedule")
	}
}

func TestRunLoop_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg, path, st := loopFixture(t)
	mon := compute.New(downQuerier{}, thresholds(cfg.Monitor), compute.WithLogger(quiet))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runLoop(ctx, cfg, path, mon, st) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not return after cancel")
	}
}
