// Package backoff implements truncated exponential backoff with jitter, used
// by watch reconnection and by the status publisher.
package backoff

import (
	"math/rand"
	"time"
)

const multiplier = 2.0

// Backoff yields successive retry delays. Not safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	jitter  func() float64 // returns a value in [-1, 1)
}

// New returns a Backoff starting at initial and capped at max.
func New(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
		jitter:  func() float64 { return rand.Float64()*2 - 1 }, //nolint:gosec // not crypto
	}
}

// Next returns the current delay with ±25 % jitter and advances the state.
func (b *Backoff) Next() time.Duration {
	d := b.current + time.Duration(float64(b.current)*0.25*b.jitter())
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * multiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the delay to its initial value.
func (b *Backoff) Reset() {
	b.current = b.initial
}
