package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/dsa110/mnc/pkg/cnf"
	"github.com/dsa110/mnc/pkg/logging"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/server/internal/alerts"
	"github.com/dsa110/mnc/server/internal/api"
	"github.com/dsa110/mnc/server/internal/auth"
	"github.com/dsa110/mnc/server/internal/board"
	"github.com/dsa110/mnc/server/internal/config"
	"github.com/dsa110/mnc/server/internal/health"
	"github.com/dsa110/mnc/server/internal/ws"
)

var version = "dev"

func main() {
	os.Exit(realMain())
}

// realMain holds the process body so deferred cleanup runs before exit.
func realMain() int {
	configPath := flag.String("config", "mncserver.yaml", "path to config file")
	memory := flag.Bool("memory", false, "serve an in-memory store instead of dialing etcd")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}

	logger, closer, err := logging.New(cfg.Log, logging.Identity{
		Subsystem: "monitoring", App: "mncserver", Version: version,
	}, os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "err", err)
		return 1
	}
	defer closer.Close()
	slog.SetDefault(logger)

	slog.Info("mncserver starting",
		"config", *configPath,
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"etcd", cfg.Etcd.Endpoints,
		"memory", *memory,
		"board_ttl", cfg.Server.Board.TTL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *memory); err != nil {
		slog.Error("mncserver failed", "err", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, memory bool) error {
	st, err := openStore(ctx, cfg, memory)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	}()

	registry, err := openRegistry(cfg.Cnf, st)
	if err != nil {
		return err
	}

	alertEngine, err := alerts.New(cfg.Server.Alerts, slog.Default())
	if err != nil {
		return err
	}
	reporter := health.NewReporter(cfg.Server.Status.Key(), cfg.Server.Status.Stale, slog.Default())
	go reporter.Run(ctx)

	// The board feeds every monitor point to the alert rules and the
	// verdict to the health service.
	b := board.New(cfg.Server.Board.TTL, slog.Default())
	b.OnUpdate(func(e board.Entry) {
		alertEngine.Evaluate(e.Key, e.Value)
		reporter.Update(e.Key, e.Value)
	})
	if _, err := b.Follow(ctx, st, cfg.Server.Board.Prefix); err != nil {
		return err
	}
	go b.Run(ctx)

	// gRPC health service with optional API key authentication.
	a := cfg.Server.Auth
	grpcSrv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(a.Mode, a.EffectiveHeader(), a.Key())),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(a.Mode, a.EffectiveHeader(), a.Key())),
	)
	reporter.Register(grpcSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", cfg.Server.GRPCPort, err)
	}
	go func() {
		slog.Info("gRPC health service listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	hub := ws.New(st, cfg.Server.Board.Prefix, slog.Default())
	go hub.Run(ctx)

	// Combined HTTP server: REST API + WebSocket hub on HTTPPort.
	handler := api.New(api.Options{
		Store:      st,
		Board:      b,
		Cnf:        registry,
		Alerts:     alertEngine,
		StatusKey:  cfg.Server.Status.Key(),
		StaleAfter: cfg.Server.Status.Stale,
		Logger:     slog.Default(),
	})
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", auth.RequireKey(a.Mode, a.EffectiveHeader(), a.Key(), handler))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("mncserver shutting down")
	reporter.Shutdown()
	grpcSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
	return nil
}

// openStore dials etcd, or builds an in-memory store when memory is set.
func openStore(ctx context.Context, cfg *config.Config, memory bool) (*store.Store, error) {
	if memory {
		mem := store.NewMemory(time.Hour)
		go mem.Run(ctx)
		return store.New(mem, store.WithLogger(slog.Default())), nil
	}
	backend, err := store.DialEtcd(cfg.Etcd)
	if err != nil {
		return nil, err
	}
	return store.New(backend, store.WithLogger(slog.Default())), nil
}

func openRegistry(c config.CnfConfig, st *store.Store) (*cnf.Registry, error) {
	opts := cnf.Options{Remote: c.Remote, Store: st, Logger: slog.Default()}
	if c.KeysFile != "" {
		keys, err := cnf.LoadKeys(c.KeysFile)
		if err != nil {
			return nil, err
		}
		opts.Keys = keys
	}
	return cnf.New(opts)
}
