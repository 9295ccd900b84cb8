package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dsa110/mnc/pkg/backoff"
	"github.com/dsa110/mnc/pkg/types"
)

// WatchPolicy decides what a subscription does when its stream fails.
//
// With Reconnect set the subscription re-opens the stream from the revision
// after the last one it delivered, so no change is missed or repeated. It
// gives up after MaxRetries consecutive failures (0 means never). Without
// Reconnect, or once retries are exhausted, the subscription terminates and
// Err reports ErrWatchTerminated together with the cause. A compacted
// revision always terminates because the gap cannot be filled.
type WatchPolicy struct {
	Reconnect      bool
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultWatchPolicy reconnects forever with 500ms..30s backoff.
func DefaultWatchPolicy() WatchPolicy {
	return WatchPolicy{
		Reconnect:      true,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

type watchOptions struct {
	policy         WatchPolicy
	allowNonFinite bool
}

// WatchOption configures Watch and WatchPrefix.
type WatchOption func(*watchOptions)

// WithPolicy overrides the Store's default WatchPolicy for one subscription.
func WithPolicy(p WatchPolicy) WatchOption {
	return func(o *watchOptions) { o.policy = p }
}

// WatchNonFinite makes the subscription accept NaN and Infinity tokens.
func WatchNonFinite(allow bool) WatchOption {
	return func(o *watchOptions) { o.allowNonFinite = allow }
}

// Subscription is the handle returned by Watch and WatchPrefix.
type Subscription struct {
	ID     string
	Key    string
	Prefix bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Cancel stops further delivery. A callback already running is not
// interrupted. Idempotent.
func (sub *Subscription) Cancel() { sub.cancel() }

// Done is closed when the delivery goroutine has exited.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Err returns nil while running or after Cancel, and an error wrapping
// ErrWatchTerminated if the subscription gave up.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Watch calls cb with the new value after every successful put to key.
// Deletions are not delivered. ctx bounds registration only; the
// subscription lives until Cancel or Close.
func (s *Store) Watch(ctx context.Context, key string, cb func(types.Value), opts ...WatchOption) (*Subscription, error) {
	return s.subscribe(ctx, key, false, func(_ string, v types.Value) { cb(v) }, opts)
}

// WatchPrefix calls cb with the key and new value after every put to any
// key under prefix.
func (s *Store) WatchPrefix(ctx context.Context, prefix string, cb func(key string, v types.Value), opts ...WatchOption) (*Subscription, error) {
	return s.subscribe(ctx, prefix, true, cb, opts)
}

func (s *Store) subscribe(ctx context.Context, key string, prefix bool, cb func(string, types.Value), opts []WatchOption) (*Subscription, error) {
	o := watchOptions{policy: s.policy}
	for _, fn := range opts {
		fn(&o)
	}

	rev, err := s.backend.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: watch %s: %w", key, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		ID:     uuid.NewString(),
		Key:    key,
		Prefix: prefix,
		ctx:    subCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("store: watch %s: %w", key, ErrClosed)
	}
	s.subs[sub.ID] = sub
	s.wg.Add(1)
	s.mu.Unlock()

	w := &watcher{
		store: s,
		sub:   sub,
		cb:    cb,
		opts:  o,
		next:  rev + 1,
	}
	go w.run()

	s.log.Debug("store: watch registered", "id", sub.ID, "key", key, "prefix", prefix, "from_revision", rev+1)
	return sub, nil
}

// watcher is the delivery loop behind one Subscription.
type watcher struct {
	store *Store
	sub   *Subscription
	cb    func(string, types.Value)
	opts  watchOptions
	next  int64 // first revision not yet delivered
}

func (w *watcher) run() {
	defer func() {
		w.store.mu.Lock()
		delete(w.store.subs, w.sub.ID)
		w.store.mu.Unlock()
		w.sub.cancel()
		close(w.sub.done)
		w.store.wg.Done()
	}()

	p := w.opts.policy
	bo := backoff.New(p.InitialBackoff, p.MaxBackoff)
	failures := 0
	log := w.store.log.With("id", w.sub.ID, "key", w.sub.Key)

	for {
		ch := w.store.backend.Watch(w.sub.ctx, w.sub.Key, WatchOptions{
			Prefix:       w.sub.Prefix,
			FromRevision: w.next,
		})
		progressed, err := w.consume(ch)
		if w.sub.ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("watch stream closed")
		}
		if progressed {
			failures = 0
			bo.Reset()
		}
		failures++

		switch {
		case errors.Is(err, ErrCompacted), errors.Is(err, ErrClosed):
			w.terminate(err)
			return
		case !p.Reconnect:
			w.terminate(err)
			return
		case p.MaxRetries > 0 && failures > p.MaxRetries:
			w.terminate(fmt.Errorf("after %d retries: %w", p.MaxRetries, err))
			return
		}

		wait := bo.Next()
		log.Warn("store: watch stream lost, will resume",
			"err", err, "resume_revision", w.next, "attempt", failures, "retry_in", wait)
		select {
		case <-w.sub.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// consume delivers events until the channel closes. It reports whether any
// event advanced the resume revision.
func (w *watcher) consume(ch <-chan WatchResponse) (bool, error) {
	progressed := false
	for resp := range ch {
		if resp.Err != nil {
			return progressed, resp.Err
		}
		from := w.next
		for _, ev := range resp.Events {
			if ev.Revision < from {
				continue // already delivered before a reconnect
			}
			if ev.Revision >= w.next {
				w.next = ev.Revision + 1
				progressed = true
			}
			if w.sub.ctx.Err() != nil {
				return progressed, nil
			}
			if ev.Deleted {
				continue
			}
			w.deliver(ev)
		}
	}
	return progressed, nil
}

func (w *watcher) deliver(ev Event) {
	v, err := types.Unmarshal(ev.Value, w.opts.allowNonFinite)
	if err != nil {
		w.store.log.Error("store: dropping undecodable watch event",
			"id", w.sub.ID, "key", ev.Key, "revision", ev.Revision, "err", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.store.log.Error("store: watch callback panicked",
				"id", w.sub.ID, "key", ev.Key, "revision", ev.Revision, "panic", r)
		}
	}()
	w.cb(ev.Key, v)
}

func (w *watcher) terminate(cause error) {
	err := fmt.Errorf("%w: %s: %w", ErrWatchTerminated, w.sub.Key, cause)
	w.sub.mu.Lock()
	w.sub.err = err
	w.sub.mu.Unlock()
	w.store.log.Error("store: watch terminated", "id", w.sub.ID, "key", w.sub.Key, "err", cause)
}
