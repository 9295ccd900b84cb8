package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultHistoryTTL = 10 * time.Minute

type record struct {
	value  []byte
	modRev int64
}

type historyEntry struct {
	Event
	at time.Time
}

// Memory is an in-process Backend with revisioned history. Watchers can
// resume from any revision newer than the last compaction. A background
// goroutine (Run) periodically compacts history older than the TTL.
//
// Disconnect and Reconnect simulate loss of the coordination service.
type Memory struct {
	mu        sync.RWMutex
	data      map[string]*record
	history   []historyEntry // ordered by revision
	rev       int64
	compacted int64 // history up to and including this revision is gone
	changed   chan struct{}
	down      bool
	closed    bool
	ttl       time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// NewMemory creates a Memory backend keeping watch history for historyTTL.
func NewMemory(historyTTL time.Duration) *Memory {
	if historyTTL <= 0 {
		historyTTL = defaultHistoryTTL
	}
	return &Memory{
		data:    make(map[string]*record),
		changed: make(chan struct{}),
		ttl:     historyTTL,
		now:     time.Now,
	}
}

// broadcastLocked wakes every waiting watcher. Caller holds m.mu.
func (m *Memory) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Memory) checkLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.down {
		return fmt.Errorf("%w: memory backend disconnected", ErrUnavailable)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (*KeyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkLocked(); err != nil {
		return nil, err
	}
	r, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &KeyValue{Key: key, Value: r.value, Revision: r.modRev}, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(); err != nil {
		return 0, err
	}
	v := append([]byte(nil), value...)
	m.rev++
	m.data[key] = &record{value: v, modRev: m.rev}
	m.history = append(m.history, historyEntry{
		Event: Event{Key: key, Value: v, Revision: m.rev},
		at:    m.now(),
	})
	m.broadcastLocked()
	return m.rev, nil
}

func (m *Memory) Delete(_ context.Context, key string, prefix bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(); err != nil {
		return 0, err
	}
	var keys []string
	for k := range m.data {
		if k == key || (prefix && strings.HasPrefix(k, key)) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	sort.Strings(keys)

	// One revision for the whole delete, as a transaction would.
	m.rev++
	at := m.now()
	for _, k := range keys {
		delete(m.data, k)
		m.history = append(m.history, historyEntry{
			Event: Event{Key: k, Deleted: true, Revision: m.rev},
			at:    at,
		})
	}
	m.broadcastLocked()
	return int64(len(keys)), nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]KeyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkLocked(); err != nil {
		return nil, err
	}
	out := make([]KeyValue, 0)
	for k, r := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KeyValue{Key: k, Value: r.value, Revision: r.modRev})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Revision(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkLocked(); err != nil {
		return 0, err
	}
	return m.rev, nil
}

func (m *Memory) Watch(ctx context.Context, key string, opts WatchOptions) <-chan WatchResponse {
	out := make(chan WatchResponse)

	m.mu.RLock()
	next := opts.FromRevision
	if next <= 0 {
		next = m.rev + 1
	}
	m.mu.RUnlock()

	match := func(k string) bool {
		if opts.Prefix {
			return strings.HasPrefix(k, key)
		}
		return k == key
	}
	send := func(r WatchResponse) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		for {
			m.mu.RLock()
			if err := m.checkLocked(); err != nil {
				m.mu.RUnlock()
				send(WatchResponse{Err: err})
				return
			}
			if next <= m.compacted {
				compacted := m.compacted
				m.mu.RUnlock()
				send(WatchResponse{Err: fmt.Errorf("%w: requested %d, compacted through %d",
					ErrCompacted, next, compacted)})
				return
			}
			start := sort.Search(len(m.history), func(i int) bool {
				return m.history[i].Revision >= next
			})
			var evs []Event
			for _, h := range m.history[start:] {
				if match(h.Key) {
					evs = append(evs, h.Event)
				}
			}
			wake := m.changed
			rev := m.rev
			m.mu.RUnlock()

			if len(evs) > 0 && !send(WatchResponse{Events: evs}) {
				return
			}
			next = rev + 1

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Close stops all watchers. Further calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.broadcastLocked()
	return nil
}

// --- fault injection ---

// Disconnect makes every operation fail with ErrUnavailable and ends all
// open watch streams.
func (m *Memory) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = true
	m.broadcastLocked()
}

// Reconnect restores service after Disconnect. Data and history survive.
func (m *Memory) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = false
}

// --- history compaction ---

// Evict drops history recorded before now minus the TTL and returns the
// number of events removed. Current values are never evicted.
func (m *Memory) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.ttl)
	n := 0
	for n < len(m.history) && !m.history[n].at.After(cutoff) {
		n++
	}
	if n == 0 {
		return 0
	}
	m.compacted = m.history[n-1].Revision
	m.history = append([]historyEntry(nil), m.history[n:]...)
	return n
}

// Run starts the background compaction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (m *Memory) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Evict(m.now()); n > 0 {
				slog.Debug("store: compacted watch history", "events", n)
			}
		}
	}
}
