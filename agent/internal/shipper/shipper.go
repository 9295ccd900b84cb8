package shipper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dsa110/mnc/agent/internal/compute"
	"github.com/dsa110/mnc/agent/internal/config"
	"github.com/dsa110/mnc/pkg/backoff"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

const (
	backoffInitial = 1 * time.Second
	backoffMax     = 60 * time.Second
	sendTimeout    = 10 * time.Second
)

// Putter is the part of *store.Store the shipper writes through.
type Putter interface {
	Put(ctx context.Context, key string, v types.Value, opts ...store.PutOption) error
}

// Shipper buffers status payloads and writes them to the store.
// Ship() is non-blocking; when the buffer is full the oldest payload is
// evicted. Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	pub       Putter
	key       string
	statusNum int
	buf       chan types.Value
	log       *slog.Logger

	newBackoff func() *backoff.Backoff // injectable for tests
	onPublish  func(error)
}

// Option configures a Shipper.
type Option func(*Shipper)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shipper) { s.log = l }
}

// OnPublish registers fn to be called with the outcome of every put.
func OnPublish(fn func(error)) Option {
	return func(s *Shipper) { s.onPublish = fn }
}

// New creates a Shipper writing through pub.
func New(pub Putter, cfg config.PublishConfig, opts ...Option) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	s := &Shipper{
		pub:        pub,
		key:        store.StatusKey(cfg.StatusNum),
		statusNum:  cfg.StatusNum,
		buf:        make(chan types.Value, size),
		log:        slog.Default(),
		newBackoff: func() *backoff.Backoff { return backoff.New(backoffInitial, backoffMax) },
		onPublish:  func(error) {},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key returns the key results are written to.
func (s *Shipper) Key() string { return s.key }

// Ship converts res to a payload and enqueues it.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(res *compute.Result) {
	p := Payload(res, s.statusNum)
	for {
		select {
		case s.buf <- p:
			return
		default:
		}
		select {
		case <-s.buf:
			s.log.Warn("shipper: buffer full, evicted oldest payload",
				"key", s.key, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Run drains the buffer until ctx is cancelled or the store is closed.
func (s *Shipper) Run(ctx context.Context) {
	bo := s.newBackoff()
	for {
		var p types.Value
		select {
		case <-ctx.Done():
			return
		case p = <-s.buf:
		}

		for {
			err := s.put(ctx, p)
			s.onPublish(err)
			if err == nil {
				bo.Reset()
				break
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, store.ErrClosed) {
				s.log.Error("shipper: store closed, stopping", "key", s.key)
				return
			}
			if !errors.Is(err, store.ErrUnavailable) {
				s.log.Error("shipper: put failed, discarding payload", "key", s.key, "err", err)
				break
			}

			wait := bo.Next()
			s.log.Warn("shipper: store unavailable, will retry",
				"key", s.key, "err", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

func (s *Shipper) put(ctx context.Context, p types.Value) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.pub.Put(ctx, s.key, p); err != nil {
		return err
	}
	s.log.Debug("shipper: status published", "key", s.key)
	return nil
}
