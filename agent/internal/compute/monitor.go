package compute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dsa110/mnc/agent/internal/tsdb"
)

// Criterion identifies one observing criterion. The numbering is the order
// of status0, status1 and status2 in the published payload.
type Criterion int

const (
	CriterionElevation Criterion = iota
	CriterionDM
	CriterionGulp

	NumCriteria = 3
)

var criterionNames = [NumCriteria]string{"elevation", "dm_coverage", "gulp_status"}

func (c Criterion) String() string {
	if c < 0 || int(c) >= NumCriteria {
		return fmt.Sprintf("criterion(%d)", int(c))
	}
	return criterionNames[c]
}

// Outcome is the verdict of one criterion.
type Outcome int

const (
	Skipped Outcome = iota
	Pass
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "skipped"
	}
}

// Thresholds holds the tunable limits of the criteria.
type Thresholds struct {
	Window           time.Duration
	ElevationMaxDeg  float64
	DMMax            float64
	CoreAntennaLimit int
}

// DefaultThresholds returns the limits used at the telescope.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:           160 * time.Second,
		ElevationMaxDeg:  0.5,
		DMMax:            1101.05,
		CoreAntennaLimit: 64,
	}
}

// CriterionResult is the verdict on one criterion together with the
// statistic it was judged on.
type CriterionResult struct {
	Criterion Criterion
	Outcome   Outcome
	// Value is the RMS elevation deviation, the mean DM searched or the
	// gulp status sum. Zero when skipped.
	Value float64
	// Rows is the number of samples the statistic was computed from.
	Rows int
}

// Result is the outcome of one evaluation.
type Result struct {
	At       time.Time
	Overall  bool
	Criteria [NumCriteria]CriterionResult

	Elevation ElevationStats
}

// Vector returns one bool per criterion, true only for Pass.
func (r *Result) Vector() []bool {
	out := make([]bool, NumCriteria)
	for i, c := range r.Criteria {
		out[i] = c.Outcome == Pass
	}
	return out
}

// Skipped returns the criteria that had no data.
func (r *Result) Skipped() []Criterion {
	var out []Criterion
	for _, c := range r.Criteria {
		if c.Outcome == Skipped {
			out = append(out, c.Criterion)
		}
	}
	return out
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithClock replaces time.Now and time.After, for tests.
func WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
		if after != nil {
			m.after = after
		}
	}
}

// Monitor evaluates the observing criteria against a time-series store.
// Evaluate and SetThresholds are safe for concurrent use.
type Monitor struct {
	q     tsdb.Querier
	log   *slog.Logger
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu sync.RWMutex
	th Thresholds
}

// New returns a Monitor reading through q.
func New(q tsdb.Querier, th Thresholds, opts ...Option) *Monitor {
	m := &Monitor{
		q:     q,
		log:   slog.Default(),
		now:   time.Now,
		after: time.After,
		th:    th,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Thresholds returns the limits currently in force.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.th
}

// SetThresholds replaces the limits. Evaluations already running keep the
// limits they started with.
func (m *Monitor) SetThresholds(th Thresholds) {
	m.mu.Lock()
	m.th = th
	m.mu.Unlock()
	m.log.Info("compute: thresholds updated",
		"window", th.Window,
		"elevation_max_deg", th.ElevationMaxDeg,
		"dm_max", th.DMMax,
		"core_antenna_limit", th.CoreAntennaLimit)
}

// Evaluate judges every criterion over [at-Window, at).
//
// A criterion whose query returns no rows is Skipped and left out of the
// overall verdict, which is the AND of the remaining criteria. With every
// criterion skipped the overall verdict is false. Query failures are
// returned together and no Result is produced.
func (m *Monitor) Evaluate(ctx context.Context, at time.Time) (*Result, error) {
	th := m.Thresholds()
	start := at.Add(-th.Window)

	res := &Result{At: at}
	var errs error

	el, stats, err := m.elevation(ctx, start, at, th)
	errs = multierr.Append(errs, err)
	dm, err := m.dmCoverage(ctx, start, at, th)
	errs = multierr.Append(errs, err)
	gulp, err := m.gulpStatus(ctx, start, at)
	errs = multierr.Append(errs, err)
	if errs != nil {
		return nil, errs
	}

	res.Criteria = [NumCriteria]CriterionResult{el, dm, gulp}
	res.Elevation = stats

	judged := 0
	res.Overall = true
	for _, c := range res.Criteria {
		switch c.Outcome {
		case Skipped:
			m.log.Warn("compute: no data, criterion skipped",
				"criterion", c.Criterion, "at", at, "window", th.Window)
		case Fail:
			judged++
			res.Overall = false
			m.log.Info("compute: criterion failed",
				"criterion", c.Criterion, "value", c.Value, "rows", c.Rows)
		case Pass:
			judged++
		}
	}
	if judged == 0 {
		res.Overall = false
	}
	return res, nil
}

// --- criteria ---

func (m *Monitor) elevation(ctx context.Context, start, end time.Time, th Thresholds) (CriterionResult, ElevationStats, error) {
	out := CriterionResult{Criterion: CriterionElevation}
	rows, err := m.rows(ctx, tsdb.Query{
		Measurement: "antmon",
		Fields:      []string{"time", "ant_num", "ant_el"},
		Start:       start,
		End:         end,
	}, "ant_num", "ant_el")
	if err != nil || len(rows) == 0 {
		return out, ElevationStats{}, err
	}

	nums := make([]float64, len(rows))
	els := make([]float64, len(rows))
	for i, r := range rows {
		nums[i], els[i] = r[0], r[1]
	}
	stats := Elevation(nums, els, th.CoreAntennaLimit)
	if stats.N == 0 {
		return out, stats, nil
	}

	out.Rows = stats.N
	out.Value = stats.RMS
	out.Outcome = verdict(stats.RMS <= th.ElevationMaxDeg)
	return out, stats, nil
}

func (m *Monitor) dmCoverage(ctx context.Context, start, end time.Time, th Thresholds) (CriterionResult, error) {
	out := CriterionResult{Criterion: CriterionDM}
	rows, err := m.rows(ctx, tsdb.Query{
		Measurement: "t1mon",
		Fields:      []string{"t1_num", "DM_space_searched"},
		Start:       start,
		End:         end,
	}, "DM_space_searched")
	if err != nil || len(rows) == 0 {
		return out, err
	}

	mean := Mean(column(rows))
	out.Rows = len(rows)
	out.Value = mean
	out.Outcome = verdict(mean >= th.DMMax/2)
	return out, nil
}

func (m *Monitor) gulpStatus(ctx context.Context, start, end time.Time) (CriterionResult, error) {
	out := CriterionResult{Criterion: CriterionGulp}
	rows, err := m.rows(ctx, tsdb.Query{
		Measurement: "t2mon",
		Fields:      []string{"t2_num", "gulp_status"},
		Start:       start,
		End:         end,
	}, "gulp_status")
	if err != nil || len(rows) == 0 {
		return out, err
	}

	sum := Sum(column(rows))
	out.Rows = len(rows)
	out.Value = sum
	out.Outcome = verdict(sum == 0)
	return out, nil
}

// rows runs q and returns the numeric rows of cols from its table. A missing
// table is an empty result.
func (m *Monitor) rows(ctx context.Context, q tsdb.Query, cols ...string) ([][]float64, error) {
	res, err := m.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("compute: %s: %w", q.Measurement, err)
	}
	tbl, ok := res[q.Measurement]
	if !ok || len(tbl.Values) == 0 {
		return nil, nil
	}
	rows, err := tbl.Floats(cols...)
	if err != nil {
		return nil, fmt.Errorf("compute: %s: %w", q.Measurement, err)
	}
	return rows, nil
}

func column(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}

func verdict(ok bool) Outcome {
	if ok {
		return Pass
	}
	return Fail
}

// --- loop ---

// Sink receives the outcome of every cycle of Run and how long the
// evaluation took. Exactly one of res and err is non-nil.
type Sink func(res *Result, err error, took time.Duration)

// Run evaluates at the current time, hands the outcome to sink, and sleeps
// for whatever remains of period. An evaluation that overruns the period is
// followed immediately by the next one. Run returns when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, period time.Duration, sink Sink) {
	m.log.Info("compute: monitor loop started", "period", period)
	for {
		start := m.now()
		res, err := m.Evaluate(ctx, start)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.Error("compute: evaluation failed", "at", start, "err", err)
		}
		elapsed := m.now().Sub(start)
		sink(res, err, elapsed)

		delay := period - elapsed
		if delay < 0 {
			m.log.Warn("compute: evaluation overran period",
				"elapsed", elapsed, "period", period)
			delay = 0
		}
		select {
		case <-ctx.Done():
			m.log.Info("compute: monitor loop stopped")
			return
		case <-m.after(delay):
		}
	}
}
