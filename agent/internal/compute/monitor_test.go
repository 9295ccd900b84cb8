package compute

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dsa110/mnc/agent/internal/tsdb"
)

// fakeQuerier serves canned tables by measurement and records the queries.
type fakeQuerier struct {
	mu      sync.Mutex
	tables  map[string]*tsdb.Table
	errs    map[string]error
	queries []tsdb.Query
	onQuery func()
}

func (f *fakeQuerier) Query(_ context.Context, q tsdb.Query) (tsdb.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.onQuery != nil {
		f.onQuery()
	}
	if err := f.errs[q.Measurement]; err != nil {
		return nil, err
	}
	out := tsdb.Result{}
	if t, ok := f.tables[q.Measurement]; ok {
		out[q.Measurement] = t
	}
	return out, nil
}

func antmon(rows ...[2]float64) *tsdb.Table {
	t := &tsdb.Table{Name: "antmon", Columns: []string{"time", "ant_num", "ant_el"}}
	for _, r := range rows {
		t.Values = append(t.Values, []any{float64(0), r[0], r[1]})
	}
	return t
}

func t1mon(dms ...float64) *tsdb.Table {
	t := &tsdb.Table{Name: "t1mon", Columns: []string{"time", "t1_num", "DM_space_searched"}}
	for i, dm := range dms {
		t.Values = append(t.Values, []any{float64(0), float64(i), dm})
	}
	return t
}

func t2mon(codes ...float64) *tsdb.Table {
	t := &tsdb.Table{Name: "t2mon", Columns: []string{"time", "t2_num", "gulp_status"}}
	for _, c := range codes {
		t.Values = append(t.Values, []any{float64(0), "1", c})
	}
	return t
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func healthyTables() map[string]*tsdb.Table {
	return map[string]*tsdb.Table{
		"antmon": antmon([2]float64{1, 70.1}, [2]float64{2, 69.9}),
		"t1mon":  t1mon(1000, 900),
		"t2mon":  t2mon(0, 0, 0),
	}
}

func newMonitor(q tsdb.Querier) *Monitor {
	return New(q, DefaultThresholds(), WithLogger(quiet()))
}

func TestEvaluate_AllPass(t *testing.T) {
	q := &fakeQuerier{tables: healthyTables()}
	at := time.UnixMilli(1700000160000)

	res, err := newMonitor(q).Evaluate(context.Background(), at)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Overall {
		t.Error("Overall = false, want true")
	}
	if diff := cmp.Diff([]bool{true, true, true}, res.Vector()); diff != "" {
		t.Errorf("Vector mismatch (-want +got):\n%s", diff)
	}
	if len(res.Skipped()) != 0 {
		t.Errorf("Skipped = %v, want none", res.Skipped())
	}
	if !approx(res.Criteria[CriterionElevation].Value, 0.1) {
		t.Errorf("elevation RMS = %v, want 0.1", res.Criteria[CriterionElevation].Value)
	}

	// Every query covers the trailing 160 s window.
	for _, qq := range q.queries {
		if !qq.End.Equal(at) || !qq.Start.Equal(at.Add(-160*time.Second)) {
			t.Errorf("%s window = [%v, %v), want [%v, %v)",
				qq.Measurement, qq.Start, qq.End, at.Add(-160*time.Second), at)
		}
	}
}

func TestEvaluate_Verdicts(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(map[string]*tsdb.Table)
		overall  bool
		vector   []bool
		outcomes [NumCriteria]Outcome
		skipped  []Criterion
	}{
		{
			name:     "gulp status nonzero",
			mutate:   func(m map[string]*tsdb.Table) { m["t2mon"] = t2mon(0, 3, 0) },
			overall:  false,
			vector:   []bool{true, true, false},
			outcomes: [NumCriteria]Outcome{Pass, Pass, Fail},
		},
		{
			name:     "elevation scattered",
			mutate:   func(m map[string]*tsdb.Table) { m["antmon"] = antmon([2]float64{1, 70}, [2]float64{2, 71.5}) },
			overall:  false,
			vector:   []bool{false, true, true},
			outcomes: [NumCriteria]Outcome{Fail, Pass, Pass},
		},
		{
			name:     "dm below half",
			mutate:   func(m map[string]*tsdb.Table) { m["t1mon"] = t1mon(500, 500) },
			overall:  false,
			vector:   []bool{true, false, true},
			outcomes: [NumCriteria]Outcome{Pass, Fail, Pass},
		},
		{
			name:     "dm exactly half passes",
			mutate:   func(m map[string]*tsdb.Table) { m["t1mon"] = t1mon(1101.05 / 2) },
			overall:  true,
			vector:   []bool{true, true, true},
			outcomes: [NumCriteria]Outcome{Pass, Pass, Pass},
		},
		{
			name:     "elevation skipped",
			mutate:   func(m map[string]*tsdb.Table) { delete(m, "antmon") },
			overall:  true,
			vector:   []bool{false, true, true},
			outcomes: [NumCriteria]Outcome{Skipped, Pass, Pass},
			skipped:  []Criterion{CriterionElevation},
		},
		{
			name: "elevation skipped, gulp fails",
			mutate: func(m map[string]*tsdb.Table) {
				delete(m, "antmon")
				m["t2mon"] = t2mon(1)
			},
			overall:  false,
			vector:   []bool{false, true, false},
			outcomes: [NumCriteria]Outcome{Skipped, Pass, Fail},
			skipped:  []Criterion{CriterionElevation},
		},
		{
			name:     "only outer antennas",
			mutate:   func(m map[string]*tsdb.Table) { m["antmon"] = antmon([2]float64{70, 10}, [2]float64{80, 50}) },
			overall:  true,
			vector:   []bool{false, true, true},
			outcomes: [NumCriteria]Outcome{Skipped, Pass, Pass},
			skipped:  []Criterion{CriterionElevation},
		},
		{
			name: "everything skipped",
			mutate: func(m map[string]*tsdb.Table) {
				for k := range m {
					delete(m, k)
				}
			},
			overall:  false,
			vector:   []bool{false, false, false},
			outcomes: [NumCriteria]Outcome{Skipped, Skipped, Skipped},
			skipped:  []Criterion{CriterionElevation, CriterionDM, CriterionGulp},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tables := healthyTables()
			tc.mutate(tables)
			res, err := newMonitor(&fakeQuerier{tables: tables}).Evaluate(context.Background(), time.Now())
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Overall != tc.overall {
				t.Errorf("Overall = %v, want %v", res.Overall, tc.overall)
			}
			if diff := cmp.Diff(tc.vector, res.Vector()); diff != "" {
				t.Errorf("Vector mismatch (-want +got):\n%s", diff)
			}
			for i, c := range res.Criteria {
				if c.Outcome != tc.outcomes[i] {
					t.Errorf("%s outcome = %s, want %s", c.Criterion, c.Outcome, tc.outcomes[i])
				}
			}
			if diff := cmp.Diff(tc.skipped, res.Skipped()); diff != "" {
				t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluate_QueryErrors(t *testing.T) {
	q := &fakeQuerier{
		tables: healthyTables(),
		errs: map[string]error{
			"antmon": errors.New("timeout"),
			"t2mon":  errors.New("no database"),
		},
	}
	res, err := newMonitor(q).Evaluate(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if res != nil {
		t.Errorf("expected no result on failure, got %+v", res)
	}
	for _, want := range []string{"antmon", "timeout", "t2mon", "no database"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want it to mention %q", err, want)
		}
	}
}

func TestSetThresholds(t *testing.T) {
	q := &fakeQuerier{tables: healthyTables()}
	m := newMonitor(q)

	th := m.Thresholds()
	th.ElevationMaxDeg = 0.05
	m.SetThresholds(th)

	res, err := m.Evaluate(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Criteria[CriterionElevation].Outcome != Fail {
		t.Errorf("elevation outcome = %s, want fail with tightened threshold", res.Criteria[CriterionElevation].Outcome)
	}
}

// fakeClock advances only when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRun_SleepsRemainderOfPeriod(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	elapsed := []time.Duration{10 * time.Second, 200 * time.Second, 0}
	cycle := 0

	q := &fakeQuerier{tables: healthyTables()}
	q.onQuery = func() {
		// Charge the whole cycle's cost to its first query.
		if len(q.queries)%NumCriteria == 1 && cycle < len(elapsed) {
			clock.Advance(elapsed[cycle])
		}
	}

	var delays []time.Duration
	after := func(d time.Duration) <-chan time.Time {
		delays = append(delays, d)
		ch := make(chan time.Time, 1)
		ch <- clock.Now()
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var results []*Result
	m := New(q, DefaultThresholds(), WithLogger(quiet()), WithClock(clock.Now, after))
	m.Run(ctx, 160*time.Second, func(res *Result, err error, _ time.Duration) {
		if err != nil {
			t.Errorf("cycle %d: %v", cycle, err)
		}
		results = append(results, res)
		cycle++
		if cycle == len(elapsed) {
			cancel()
		}
	})

	// The select after the final cycle still asks for a full period.
	want := []time.Duration{150 * time.Second, 0, 160 * time.Second}
	if diff := cmp.Diff(want, delays); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
	if len(results) != len(elapsed) {
		t.Fatalf("got %d results, want %d", len(results), len(elapsed))
	}
	for _, r := range results {
		if !r.Overall {
			t.Errorf("result at %v not observing", r.At)
		}
	}
}

func TestRun_ReportsErrors(t *testing.T) {
	q := &fakeQuerier{errs: map[string]error{"t1mon": errors.New("down")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotErr error
	m := New(q, DefaultThresholds(), WithLogger(quiet()))
	m.Run(ctx, time.Hour, func(res *Result, err error, _ time.Duration) {
		gotErr = err
		cancel()
	})
	if gotErr == nil {
		t.Fatal("sink did not receive the evaluation error")
	}
}
