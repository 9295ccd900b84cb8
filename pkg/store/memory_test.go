package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestMemory_RevisionsAdvance(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx := context.Background()

	r1, _ := m.Put(ctx, "/a", []byte("1"))
	r2, _ := m.Put(ctx, "/b", []byte("2"))
	if r2 != r1+1 {
		t.Errorf("revisions %d, %d not consecutive", r1, r2)
	}
	kv, err := m.Get(ctx, "/a")
	if err != nil || kv == nil || kv.Revision != r1 {
		t.Fatalf("Get /a = %+v, %v", kv, err)
	}
	n, _ := m.Delete(ctx, "/", true)
	if n != 2 {
		t.Errorf("Delete prefix removed %d, want 2", n)
	}
	rev, _ := m.Revision(ctx)
	if rev != r2+1 {
		t.Errorf("Revision after delete = %d, want %d", rev, r2+1)
	}
}

func TestMemory_WatchFromRevisionReplaysHistory(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, v := range []string{"1", "2", "3"} {
		if _, err := m.Put(ctx, "/k", []byte(v)); err != nil {
			t.Fatal(err)
		}
	}
	ch := m.Watch(ctx, "/k", WatchOptions{FromRevision: 2})
	select {
	case resp := <-ch:
		if resp.Err != nil {
			t.Fatalf("watch err: %v", resp.Err)
		}
		if len(resp.Events) != 2 || string(resp.Events[0].Value) != "2" || string(resp.Events[1].Value) != "3" {
			t.Errorf("replayed events = %+v", resp.Events)
		}
	case <-time.After(time.Second):
		t.Fatal("no replay")
	}
}

func TestMemory_EvictCompactsHistory(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(5 * time.Minute)
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.now = fixedClock(base.Add(-10 * time.Minute))
	m.Put(ctx, "/old", []byte("1"))
	m.now = fixedClock(base)
	m.Put(ctx, "/new", []byte("2"))

	if n := m.Evict(base); n != 1 {
		t.Fatalf("Evict removed %d, want 1", n)
	}
	if kv, _ := m.Get(ctx, "/old"); kv == nil {
		t.Error("current values must survive compaction")
	}

	resp := <-m.Watch(ctx, "/", WatchOptions{Prefix: true, FromRevision: 1})
	if !errors.Is(resp.Err, ErrCompacted) {
		t.Errorf("watch from compacted revision: err = %v, want ErrCompacted", resp.Err)
	}
}

func TestMemory_RunStopsOnCancel(t *testing.T) {
	m := NewMemory(time.Minute)
	defer m.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMemory_ClosedRejects(t *testing.T) {
	m := NewMemory(time.Minute)
	m.Close()
	if _, err := m.Put(context.Background(), "/a", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close: err = %v, want ErrClosed", err)
	}
}
