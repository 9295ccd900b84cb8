package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/dsa110/mnc/agent/internal/compute"
	"github.com/dsa110/mnc/agent/internal/config"
	"github.com/dsa110/mnc/agent/internal/metrics"
	"github.com/dsa110/mnc/agent/internal/report"
	"github.com/dsa110/mnc/agent/internal/shipper"
	"github.com/dsa110/mnc/agent/internal/tsdb"
	"github.com/dsa110/mnc/pkg/logging"
	"github.com/dsa110/mnc/pkg/mjd"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

var version = "dev"

func main() {
	os.Exit(realMain())
}

// realMain holds the process body so deferred cleanup, such as flushing the
// rotated log file, runs before the exit code is returned.
func realMain() int {
	configPath := flag.String("config", "statusmon.yaml", "path to config file")
	once := flag.Bool("once", false, "evaluate once, print the status payload and exit")
	at := flag.String("at", "", "evaluation time for -once or start day for -day (RFC 3339 or MJD)")
	day := flag.Bool("day", false, "compute the daily report for the day starting at -at and exit")
	noPublish := flag.Bool("no-publish", false, "with -once, do not write the payload to etcd")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}

	logger, closer, err := logging.New(cfg.Log, logging.Identity{
		Subsystem: "monitoring", App: "statusmon", Version: version,
	}, os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "err", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)

	slog.Info("statusmon starting",
		"config", *configPath,
		"influx", cfg.Influx.Endpoint,
		"etcd", cfg.Etcd.Endpoints,
		"period", cfg.Monitor.Period)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath, *once, *day, *at, *noPublish); err != nil {
		slog.Error("statusmon failed", "err", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, path string, once, day bool, at string, noPublish bool) error {
	when := time.Now()
	if at != "" {
		t, err := parseTime(at)
		if err != nil {
			return err
		}
		when = t
	}

	client, err := tsdb.New(cfg.Influx)
	if err != nil {
		return err
	}
	mon := compute.New(client, thresholds(cfg.Monitor), compute.WithLogger(slog.Default()))

	switch {
	case day:
		if at == "" {
			when = when.AddDate(0, 0, -1)
		}
		return runDay(ctx, cfg, mon, when)
	case once && noPublish:
		return runOnce(ctx, mon, nil, cfg.Publish.StatusNum, when)
	}

	backend, err := store.DialEtcd(cfg.Etcd)
	if err != nil {
		return err
	}
	st := store.New(backend, store.WithLogger(slog.Default()))
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	}()

	if once {
		return runOnce(ctx, mon, st, cfg.Publish.StatusNum, when)
	}
	return runLoop(ctx, cfg, path, mon, st)
}

// runOnce evaluates at when, prints the payload and optionally publishes it.
func runOnce(ctx context.Context, mon *compute.Monitor, st *store.Store, statusNum int, when time.Time) error {
	res, err := mon.Evaluate(ctx, when)
	if err != nil {
		return err
	}
	payload := shipper.Payload(res, statusNum)
	data, err := types.Marshal(payload, false)
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	if st == nil {
		return nil
	}
	return st.Put(ctx, store.StatusKey(statusNum), payload)
}

// runDay computes and stores the report for the day containing when.
func runDay(ctx context.Context, cfg *config.Config, mon *compute.Monitor, when time.Time) error {
	hist, err := report.OpenHistory(cfg.Report.Path)
	if err != nil {
		return err
	}
	defer hist.Close()

	sched := report.NewScheduler(mon, hist, slog.Default())
	d, err := sched.Run(ctx, when.UTC().Truncate(24*time.Hour))
	if err != nil {
		return err
	}
	fmt.Printf("%0.6f %f\n", d.MJD(), d.Fraction)
	return nil
}

// runLoop is the daemon: evaluate every period, publish, serve metrics and
// run the daily report until ctx is cancelled.
func runLoop(ctx context.Context, cfg *config.Config, path string, mon *compute.Monitor, st *store.Store) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()

	// Report setup must fail before any worker below is started.
	if cfg.Report.Enabled {
		hist, err := report.OpenHistory(cfg.Report.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
		sched := report.NewScheduler(mon, hist, slog.Default())
		sched.OnReport = func(d report.Day) { m.ObserveDayFraction(d.Fraction) }
		if err := sched.Start(ctx, cfg.Report.Schedule); err != nil {
			return err
		}
		defer sched.Stop()
	}

	ship := shipper.New(st, cfg.Publish,
		shipper.WithLogger(slog.Default()),
		shipper.OnPublish(m.ObservePublish))

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()
	var mu sync.Mutex
	var errs error
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				slog.Error("component stopped", "component", name, "err", err)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	if cfg.Metrics.Listen != "" {
		goRun("metrics", func() error { return m.Serve(ctx, cfg.Metrics.Listen) })
	}

	goRun("shipper", func() error {
		ship.Run(ctx)
		return nil
	})

	// Hot reload applies to the thresholds only; the period and
	// connections are fixed for the life of the process.
	goRun("config watcher", func() error {
		return config.Watch(ctx, path, func(updated *config.Config) {
			mon.SetThresholds(thresholds(updated.Monitor))
		})
	})

	mon.Run(ctx, cfg.Monitor.Period, func(res *compute.Result, err error, took time.Duration) {
		m.ObserveEvaluation(res, err, took)
		if err != nil {
			return
		}
		ship.Ship(res)
		slog.Debug("evaluation shipped",
			"overall", res.Overall,
			"vector", res.Vector(),
			"skipped", res.Skipped(),
			"took", took)
	})

	cancel()
	wg.Wait()
	slog.Info("statusmon shutting down")
	mu.Lock()
	defer mu.Unlock()
	return errs
}

func thresholds(m config.MonitorConfig) compute.Thresholds {
	return compute.Thresholds{
		Window:           m.Window,
		ElevationMaxDeg:  m.ElevationMaxDeg,
		DMMax:            m.DMMax,
		CoreAntennaLimit: m.CoreAntennaLimit,
	}
}

// parseTime accepts RFC 3339 or a Modified Julian Date.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is neither RFC 3339 nor an MJD", s)
	}
	return mjd.ToTime(f), nil
}
