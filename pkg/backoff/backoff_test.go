package backoff

import (
	"testing"
	"time"
)

func TestBackoff_DoublesAndCaps(t *testing.T) {
	b := New(100*time.Millisecond, 500*time.Millisecond)
	b.jitter = func() float64 { return 0 }

	want := []time.Duration{100, 200, 400, 500, 500}
	for i, w := range want {
		if got := b.Next(); got != w*time.Millisecond {
			t.Errorf("Next #%d = %v, want %v", i, got, w*time.Millisecond)
		}
	}

	b.Reset()
	if got := b.Next(); got != 100*time.Millisecond {
		t.Errorf("after Reset Next = %v, want 100ms", got)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := New(time.Second, time.Second)
	for i := 0; i < 200; i++ {
		d := b.Next()
		if d < 750*time.Millisecond || d > 1250*time.Millisecond {
			t.Fatalf("Next = %v, outside ±25%% of 1s", d)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	b := New(0, 0)
	b.jitter = func() float64 { return 0 }
	if got := b.Next(); got != time.Second {
		t.Errorf("Next = %v, want 1s default", got)
	}
}
