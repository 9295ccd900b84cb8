package cnf

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

var (
	// ErrUnknownSubsystem is returned for a name missing from the key map.
	ErrUnknownSubsystem = errors.New("cnf: unknown subsystem")
	// ErrNoValue means the name is known but nothing is stored for it.
	ErrNoValue = errors.New("cnf: no value for subsystem")
	// ErrNoStore is returned by AddWatch on a registry built without a store.
	ErrNoStore = errors.New("cnf: registry has no store")
)

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultsFile struct {
	Keys map[string]string `yaml:"keys"`
	Data map[string]any    `yaml:"data"`
}

var defaults = func() defaultsFile {
	var d defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		panic(fmt.Sprintf("cnf: embedded defaults: %v", err))
	}
	return d
}()

// DefaultKeys returns a copy of the built-in name→key mapping.
func DefaultKeys() map[string]string {
	out := make(map[string]string, len(defaults.Keys))
	for k, v := range defaults.Keys {
		out[k] = v
	}
	return out
}

// DefaultData returns the built-in fallback payloads.
func DefaultData() map[string]types.Value {
	out := make(map[string]types.Value, len(defaults.Data))
	for name, raw := range defaults.Data {
		out[name] = types.MustFromAny(raw)
	}
	return out
}

// LoadKeys reads a cnfConfig.yml file: a flat mapping of subsystem name
// to /cnf key.
func LoadKeys(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cnf: read %q: %w", path, err)
	}
	var keys map[string]string
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("cnf: parse %q: %w", path, err)
	}
	for name, key := range keys {
		if name == "" || key == "" {
			return nil, fmt.Errorf("cnf: %q: empty name or key", path)
		}
	}
	return keys, nil
}

// Options configures New.
type Options struct {
	// Keys maps subsystem names to store keys. Nil means DefaultKeys.
	Keys map[string]string
	// Data is the static fallback table. Nil means DefaultData.
	Data map[string]types.Value
	// Remote makes Get read from Store instead of Data.
	Remote bool
	// Store is required for Remote and for AddWatch.
	Store  *store.Store
	Logger *slog.Logger
}

// Registry is safe for concurrent use; its tables are read-only.
type Registry struct {
	keys   map[string]string
	data   map[string]types.Value
	remote bool
	store  *store.Store
	log    *slog.Logger
}

// New builds a Registry. Keys and Data are copied.
func New(opts Options) (*Registry, error) {
	if opts.Remote && opts.Store == nil {
		return nil, fmt.Errorf("cnf: remote mode: %w", ErrNoStore)
	}
	r := &Registry{
		keys:   make(map[string]string),
		data:   make(map[string]types.Value),
		remote: opts.Remote,
		store:  opts.Store,
		log:    opts.Logger,
	}
	if r.log == nil {
		r.log = slog.Default()
	}

	keys := opts.Keys
	if keys == nil {
		keys = DefaultKeys()
	}
	for k, v := range keys {
		r.keys[k] = v
	}
	data := opts.Data
	if data == nil {
		data = DefaultData()
	}
	for k, v := range data {
		r.data[k] = v
	}
	return r, nil
}

// Remote reports whether Get reads from the store.
func (r *Registry) Remote() bool { return r.remote }

// List returns the known subsystem names, sorted.
func (r *Registry) List() []string {
	out := make([]string, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Key returns the store key for name.
func (r *Registry) Key(name string) (string, error) {
	key, ok := r.keys[name]
	if !ok {
		r.log.Error("cnf: unknown subsystem name", "name", name)
		return "", fmt.Errorf("%w: %q", ErrUnknownSubsystem, name)
	}
	return key, nil
}

// Get returns the configuration payload for name.
func (r *Registry) Get(ctx context.Context, name string) (types.Value, error) {
	key, err := r.Key(name)
	if err != nil {
		return types.Value{}, err
	}

	if r.remote {
		v, ok, err := r.store.Get(ctx, key)
		if err != nil {
			return types.Value{}, fmt.Errorf("cnf: get %s: %w", name, err)
		}
		if !ok {
			return types.Value{}, fmt.Errorf("%w: %s at %s", ErrNoValue, name, key)
		}
		return v, nil
	}

	v, ok := r.data[name]
	if !ok {
		r.log.Warn("cnf: no static data for subsystem", "name", name)
		return types.Value{}, fmt.Errorf("%w: %s", ErrNoValue, name)
	}
	return v, nil
}

// AddWatch calls cb with the new payload whenever the key for name changes.
func (r *Registry) AddWatch(ctx context.Context, name string, cb func(types.Value), opts ...store.WatchOption) (*store.Subscription, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	key, err := r.Key(name)
	if err != nil {
		return nil, err
	}
	sub, err := r.store.Watch(ctx, key, cb, opts...)
	if err != nil {
		return nil, fmt.Errorf("cnf: watch %s: %w", name, err)
	}
	return sub, nil
}

// Publish writes the static payload of every subsystem to its key. Used to
// seed a fresh cluster from the built-in table.
func (r *Registry) Publish(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, ErrNoStore
	}
	n := 0
	for _, name := range r.List() {
		v, ok := r.data[name]
		if !ok {
			continue
		}
		if err := r.store.Put(ctx, r.keys[name], v); err != nil {
			return n, fmt.Errorf("cnf: publish %s: %w", name, err)
		}
		n++
	}
	return n, nil
}
