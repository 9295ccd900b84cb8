package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsa110/mnc/pkg/logging"
	"github.com/dsa110/mnc/pkg/store"
)

// DefaultEtcdConfig is the etcd client file read when --etcd-config is unset.
const DefaultEtcdConfig = "etcdConfig.yml"

// Options configures NewRoot.
type Options struct {
	Out io.Writer
	Err io.Writer

	// Store, when set, is used by every command and never closed. Otherwise
	// each command opens a store from the global flags and closes it on exit.
	Store *store.Store

	Version string
}

type globalFlags struct {
	etcdConfig string
	memory     bool
	logLevel   string
}

// app is the state shared by every command of one root.
type app struct {
	opts  Options
	flags globalFlags
	log   *slog.Logger
}

// NewRoot builds the dsactl command tree.
func NewRoot(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "dsactl",
		Short: "Inspect and command the DSA-110 through its key-value store",
		Long: `dsactl reads and writes the DSA-110 monitor and control namespace.

Keys live under three prefixes:
  /mon/<subsystem>/<id>   monitor points published by each subsystem
  /cmd/<subsystem>/<id>   commands; id 0 addresses every instance
  /cnf/<subsystem>        configuration

Examples:
  # Read antenna 24's monitor point
  dsactl ant 24 status

  # List every monitor point under /mon/beb/
  dsactl ls /mon/beb/

  # Follow the health monitor's verdict
  dsactl watch /mon/status/1`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(a.flags.logLevel)
			if err != nil {
				return err
			}
			a.log = slog.New(slog.NewTextHandler(a.opts.Err, &slog.HandlerOptions{Level: level}))
			return nil
		},
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.etcdConfig, "etcd-config", DefaultEtcdConfig, "etcd client config file")
	pf.BoolVar(&a.flags.memory, "memory", false, "use an empty in-memory store instead of etcd (dry run)")
	pf.StringVar(&a.flags.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		a.getCmd(),
		a.putCmd(),
		a.delCmd(),
		a.lsCmd(),
		a.watchCmd(),
		a.antCmd(),
		a.cnfCmd(),
		a.calstatusCmd(),
		a.statusCmd(),
	)
	return root
}

// withStore runs fn against the command's store.
func (a *app) withStore(ctx context.Context, fn func(*store.Store) error) error {
	if a.opts.Store != nil {
		return fn(a.opts.Store)
	}
	st, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.log.Warn("dsactl: store close failed", "err", err)
		}
	}()
	return fn(st)
}

func (a *app) open() (*store.Store, error) {
	if a.flags.memory {
		return store.New(store.NewMemory(time.Hour), store.WithLogger(a.log)), nil
	}
	cfg, err := store.LoadEtcdConfig(a.flags.etcdConfig)
	if err != nil {
		return nil, fmt.Errorf("dsactl: %w", err)
	}
	backend, err := store.DialEtcd(cfg)
	if err != nil {
		return nil, fmt.Errorf("dsactl: %w", err)
	}
	a.log.Debug("dsactl: connected", "endpoints", cfg.Endpoints)
	return store.New(backend, store.WithLogger(a.log)), nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.opts.Out, format, args...)
}
