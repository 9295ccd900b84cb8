package shipper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dsa110/mnc/agent/internal/compute"
	"github.com/dsa110/mnc/agent/internal/config"
	"github.com/dsa110/mnc/pkg/backoff"
	"github.com/dsa110/mnc/pkg/mjd"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func publishCfg() config.PublishConfig {
	return config.PublishConfig{StatusNum: 1, BufferSize: 10}
}

func newMemStore(t *testing.T) (*store.Store, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(time.Minute)
	s := store.New(mem, store.WithLogger(quiet()))
	t.Cleanup(func() { _ = s.Close() })
	return s, mem
}

func fastBackoff() *backoff.Backoff { return backoff.New(time.Millisecond, 5*time.Millisecond) }

// makeResult builds a compute.Result with the given overall verdict.
func makeResult(at time.Time, outcomes ...compute.Outcome) *compute.Result {
	res := &compute.Result{At: at, Overall: true}
	judged := 0
	for i, o := range outcomes {
		res.Criteria[i] = compute.CriterionResult{Criterion: compute.Criterion(i), Outcome: o}
		switch o {
		case compute.Fail:
			res.Overall = false
			judged++
		case compute.Pass:
			judged++
		}
	}
	if judged == 0 {
		res.Overall = false
	}
	return res
}

// waitForKey polls st until key exists or the deadline passes.
func waitForKey(t *testing.T, st *store.Store, key string) types.Value {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v, ok, err := st.Get(context.Background(), key)
		if err == nil && ok {
			return v
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("key %s never written", key)
	return types.Value{}
}

func TestPayload(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	res := makeResult(at, compute.Skipped, compute.Pass, compute.Pass)

	got := Payload(res, 1)
	want := types.Object(map[string]types.Value{
		"status":     types.Int(1),
		"status0":    types.Int(0),
		"status1":    types.Int(1),
		"status2":    types.Int(1),
		"status_num": types.Int(1),
		"version":    types.Int(1),
		"time":       types.Number(mjd.FromTime(at)),
		"skipped":    types.Array(types.String("elevation")),
	})
	if !got.Equal(want) {
		t.Errorf("Payload = %s\nwant %s", got, want)
	}
}

func TestShipper_Publishes(t *testing.T) {
	st, _ := newMemStore(t)
	s := New(st, publishCfg(), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	at := time.Now()
	s.Ship(makeResult(at, compute.Pass, compute.Pass, compute.Fail))

	v := waitForKey(t, st, "/mon/status/1")
	status, _ := v.Field("status")
	if n, _ := status.AsNumber(); n != 0 {
		t.Errorf("status = %v, want 0", n)
	}
	s2, _ := v.Field("status2")
	if n, _ := s2.AsNumber(); n != 0 {
		t.Errorf("status2 = %v, want 0", n)
	}

	cancel()
	<-done
}

func TestShipper_BufferEvictsOldest(t *testing.T) {
	// BufferSize=3; Ship 5 items while the shipper is not running.
	// Only the 3 most recent should survive.
	s := New(nil, config.PublishConfig{StatusNum: 1, BufferSize: 3}, WithLogger(quiet()))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Ship(makeResult(base.Add(time.Duration(i)*24*time.Hour), compute.Pass, compute.Pass, compute.Pass))
	}

	var days []float64
	for len(s.buf) > 0 {
		p := <-s.buf
		tv, _ := p.Field("time")
		n, _ := tv.AsNumber()
		days = append(days, n-mjd.FromTime(base))
	}
	if diff := cmp.Diff([]float64{2, 3, 4}, days); diff != "" {
		t.Errorf("surviving payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestShipper_RetriesWhileUnavailable(t *testing.T) {
	st, mem := newMemStore(t)

	var mu sync.Mutex
	var outcomes []error
	s := New(st, publishCfg(), WithLogger(quiet()), OnPublish(func(err error) {
		mu.Lock()
		outcomes = append(outcomes, err)
		mu.Unlock()
	}))
	s.newBackoff = fastBackoff

	mem.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Ship(makeResult(time.Now(), compute.Pass, compute.Pass, compute.Pass))

	// Wait for at least one failed attempt.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(outcomes)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mem.Reconnect()
	v := waitForKey(t, st, "/mon/status/1")
	status, _ := v.Field("status")
	if n, _ := status.AsNumber(); n != 1 {
		t.Errorf("status = %v, want 1", n)
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) < 2 {
		t.Fatalf("outcomes = %v, want a failure then a success", outcomes)
	}
	if !errors.Is(outcomes[0], store.ErrUnavailable) {
		t.Errorf("first outcome = %v, want ErrUnavailable", outcomes[0])
	}
	if outcomes[len(outcomes)-1] != nil {
		t.Errorf("last outcome = %v, want nil", outcomes[len(outcomes)-1])
	}
}

// failingPutter rejects every put with a fixed error.
type failingPutter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *failingPutter) Put(context.Context, string, types.Value, ...store.PutOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *failingPutter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestShipper_DiscardsOnPermanentError(t *testing.T) {
	fp := &failingPutter{err: errors.New("bad request")}
	s := New(fp, publishCfg(), WithLogger(quiet()))
	s.newBackoff = fastBackoff

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Ship(makeResult(time.Now(), compute.Pass, compute.Pass, compute.Pass))
	s.Ship(makeResult(time.Now(), compute.Pass, compute.Pass, compute.Pass))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fp.Calls() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if got := fp.Calls(); got != 2 {
		t.Errorf("put calls = %d, want 2 (one per payload, no retry)", got)
	}

	cancel()
	<-done
}

func TestShipper_StopsWhenStoreClosed(t *testing.T) {
	fp := &failingPutter{err: store.ErrClosed}
	s := New(fp, publishCfg(), WithLogger(quiet()))

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	s.Ship(makeResult(time.Now(), compute.Pass, compute.Pass, compute.Pass))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after ErrClosed")
	}
}

func TestShipper_GracefulShutdown(t *testing.T) {
	st, _ := newMemStore(t)
	s := New(st, publishCfg(), WithLogger(quiet()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
