package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dsa110/mnc/pkg/types"
)

// Entry is a decoded key from List.
type Entry struct {
	Key      string
	Value    types.Value
	Revision int64
}

// Store is the typed client for the key namespace. It is safe for concurrent
// use by any number of callers.
type Store struct {
	backend Backend
	log     *slog.Logger
	policy  WatchPolicy

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for warnings and watch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithWatchPolicy sets the default reconnect policy for new subscriptions.
func WithWatchPolicy(p WatchPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// New creates a Store over b. The Store owns b and closes it on Close.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		log:     slog.Default(),
		policy:  DefaultWatchPolicy(),
		subs:    make(map[string]*Subscription),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- options ---

type putOptions struct{ strict bool }

// PutOption configures Put.
type PutOption func(*putOptions)

// Strict controls whether Put rejects NaN and ±Inf. The default is true.
func Strict(strict bool) PutOption {
	return func(o *putOptions) { o.strict = strict }
}

type getOptions struct{ allowNonFinite bool }

// GetOption configures Get and List.
type GetOption func(*getOptions)

// AllowNonFinite makes reads accept the NaN and Infinity tokens.
// The default is false.
func AllowNonFinite(allow bool) GetOption {
	return func(o *getOptions) { o.allowNonFinite = allow }
}

// --- operations ---

// Put serializes v and writes it to key. In strict mode a non-finite number
// anywhere in v fails with types.ErrNonFinite and nothing is written.
func (s *Store) Put(ctx context.Context, key string, v types.Value, opts ...PutOption) error {
	o := putOptions{strict: true}
	for _, fn := range opts {
		fn(&o)
	}
	data, err := types.Marshal(v, !o.strict)
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	if _, err := s.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

// Get reads and decodes key. The second result is false, with a nil error,
// when the key does not exist.
func (s *Store) Get(ctx context.Context, key string, opts ...GetOption) (types.Value, bool, error) {
	var o getOptions
	for _, fn := range opts {
		fn(&o)
	}
	kv, err := s.backend.Get(ctx, key)
	if err != nil {
		return types.Value{}, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	if kv == nil {
		s.log.Warn("store: key not found", "key", key)
		return types.Null(), false, nil
	}
	v, err := types.Unmarshal(kv.Value, o.allowNonFinite)
	if err != nil {
		return types.Value{}, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, true, nil
}

// Delete removes key, or every key under it when recursive is set.
// It returns the number of keys removed.
func (s *Store) Delete(ctx context.Context, key string, recursive bool) (int64, error) {
	n, err := s.backend.Delete(ctx, key, recursive)
	if err != nil {
		return 0, fmt.Errorf("store: delete %s: %w", key, err)
	}
	return n, nil
}

// List decodes every key under prefix in key order. Keys that fail to decode
// are left out of the result and reported together in the error, so callers
// get every readable entry alongside the failures.
func (s *Store) List(ctx context.Context, prefix string, opts ...GetOption) ([]Entry, error) {
	var o getOptions
	for _, fn := range opts {
		fn(&o)
	}
	kvs, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", prefix, err)
	}
	out := make([]Entry, 0, len(kvs))
	var errs error
	for _, kv := range kvs {
		v, err := types.Unmarshal(kv.Value, o.allowNonFinite)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store: list %s: %w", kv.Key, err))
			continue
		}
		out = append(out, Entry{Key: kv.Key, Value: v, Revision: kv.Revision})
	}
	return out, errs
}

// Cancel stops delivery for sub. Safe to call more than once, and from
// inside the subscription's own callback.
func (s *Store) Cancel(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Cancel()
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close cancels every subscription, waits for their goroutines to exit and
// closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("store: timed out waiting for watch callbacks to return")
	}
	return s.backend.Close()
}
