package board

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

// Entry is a monitor point together with the time it was last received.
type Entry struct {
	Key       string
	Value     types.Value
	UpdatedAt time.Time
}

// Source is the part of store.Store the board reads from.
type Source interface {
	List(ctx context.Context, prefix string, opts ...store.GetOption) ([]store.Entry, error)
	WatchPrefix(ctx context.Context, prefix string, cb func(key string, v types.Value), opts ...store.WatchOption) (*store.Subscription, error)
}

// Board is a thread-safe cache of monitor points, keyed by store key.
// A TTL of zero keeps entries forever.
type Board struct {
	mu    sync.RWMutex
	data  map[string]*Entry
	hooks []func(Entry)
	ttl   time.Duration
	now   func() time.Time // injectable for deterministic tests
	log   *slog.Logger
}

// New creates a Board with the given TTL.
func New(ttl time.Duration, log *slog.Logger) *Board {
	if log == nil {
		log = slog.Default()
	}
	return &Board{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
		log:  log,
	}
}

// OnUpdate registers fn to be called after every Put. Hooks run on the
// caller's goroutine, outside the board lock.
func (b *Board) OnUpdate(fn func(Entry)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Put stores or replaces the value for key and runs the hooks.
func (b *Board) Put(key string, v types.Value) {
	e := Entry{Key: key, Value: v, UpdatedAt: b.now()}
	b.mu.Lock()
	b.data[key] = &e
	hooks := b.hooks
	b.mu.Unlock()

	for _, fn := range hooks {
		fn(e)
	}
}

// seed stores v only if key has not been seen yet, so a watch event that
// raced ahead of the initial List is not overwritten by older data.
func (b *Board) seed(key string, v types.Value) bool {
	b.mu.Lock()
	if _, ok := b.data[key]; ok {
		b.mu.Unlock()
		return false
	}
	e := Entry{Key: key, Value: v, UpdatedAt: b.now()}
	b.data[key] = &e
	hooks := b.hooks
	b.mu.Unlock()

	for _, fn := range hooks {
		fn(e)
	}
	return true
}

// Get returns the entry for key and whether one was found. The entry may be
// stale if the TTL has elapsed.
func (b *Board) Get(key string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.data[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Fresh reports whether e is within the TTL.
func (b *Board) Fresh(e Entry) bool {
	return b.ttl == 0 || e.UpdatedAt.After(b.now().Add(-b.ttl))
}

// List returns the live entries under prefix in key order. Stale entries
// that have not yet been evicted are excluded.
func (b *Board) List(prefix string) []Entry {
	b.mu.RLock()
	out := make([]Entry, 0, len(b.data))
	for k, e := range b.data {
		if strings.HasPrefix(k, prefix) && b.Fresh(*e) {
			out = append(out, *e)
		}
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (b *Board) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (b *Board) Evict(now time.Time) int {
	if b.ttl == 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := now.Add(-b.ttl)
	removed := 0
	for k, e := range b.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(b.data, k)
			removed++
		}
	}
	return removed
}

// Follow mirrors every key under prefix into the board. The watch is
// registered before the initial List so no update between the two is lost.
// Undecodable keys in the initial List are logged and skipped.
func (b *Board) Follow(ctx context.Context, src Source, prefix string) (*store.Subscription, error) {
	sub, err := src.WatchPrefix(ctx, prefix, b.Put, store.WatchNonFinite(true))
	if err != nil {
		return nil, fmt.Errorf("board: follow %s: %w", prefix, err)
	}

	entries, err := src.List(ctx, prefix, store.AllowNonFinite(true))
	if err != nil {
		if entries == nil {
			sub.Cancel()
			return nil, fmt.Errorf("board: follow %s: %w", prefix, err)
		}
		b.log.Warn("board: some keys could not be decoded", "prefix", prefix, "err", err)
	}
	seeded := 0
	for _, e := range entries {
		if b.seed(e.Key, e.Value) {
			seeded++
		}
	}
	b.log.Info("board: following", "prefix", prefix, "seeded", seeded, "subscription", sub.ID)
	return sub, nil
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled.
func (b *Board) Run(ctx context.Context) {
	if b.ttl == 0 {
		<-ctx.Done()
		return
	}
	interval := b.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := b.Evict(now); n > 0 {
				b.log.Debug("board: evicted stale monitor points", "count", n)
			}
		}
	}
}
