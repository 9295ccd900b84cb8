package compute

import (
	"context"
	"testing"
	"time"

	"github.com/dsa110/mnc/agent/internal/tsdb"
)

// timedQuerier fails the gulp criterion for queries ending before cutoff.
type timedQuerier struct {
	cutoff time.Time
}

func (q timedQuerier) Query(_ context.Context, qq tsdb.Query) (tsdb.Result, error) {
	tables := healthyTables()
	if qq.End.Before(q.cutoff) {
		tables["t2mon"] = t2mon(2)
	}
	out := tsdb.Result{}
	if t, ok := tables[qq.Measurement]; ok {
		out[qq.Measurement] = t
	}
	return out, nil
}

func TestFractionOfDay(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := newMonitor(timedQuerier{cutoff: start.Add(12 * time.Hour)})

	df, err := m.FractionOfDay(context.Background(), start, 160*time.Second)
	if err != nil {
		t.Fatalf("FractionOfDay: %v", err)
	}
	if df.Blocks != 540 {
		t.Fatalf("Blocks = %d, want 540", df.Blocks)
	}
	// Blocks 0..269 end before noon.
	if df.Observing != 270 {
		t.Errorf("Observing = %d, want 270", df.Observing)
	}
	if !approx(df.Fraction, 0.5) {
		t.Errorf("Fraction = %v, want 0.5", df.Fraction)
	}
	if df.Vectors[0] != [NumCriteria]int{1, 1, 0} {
		t.Errorf("Vectors[0] = %v, want [1 1 0]", df.Vectors[0])
	}
	if df.Vectors[539] != [NumCriteria]int{1, 1, 1} {
		t.Errorf("Vectors[539] = %v, want [1 1 1]", df.Vectors[539])
	}
}

func TestFractionOfDay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newMonitor(&fakeQuerier{tables: healthyTables()})
	if _, err := m.FractionOfDay(ctx, time.Now(), 160*time.Second); err == nil {
		t.Fatal("expected context error")
	}
}
