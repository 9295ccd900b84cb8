package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dsa110/mnc/agent/internal/compute"
)

// DefaultBlock is the evaluation block length, one monitor period.
const DefaultBlock = 160 * time.Second

// Evaluator computes one day's observing fraction.
type Evaluator interface {
	FractionOfDay(ctx context.Context, start time.Time, block time.Duration) (*compute.DayFraction, error)
}

// Scheduler runs the daily report on a cron schedule.
type Scheduler struct {
	eval    Evaluator
	history *History
	block   time.Duration
	log     *slog.Logger
	now     func() time.Time

	// OnReport, if set, is called after every successful report.
	OnReport func(Day)

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a Scheduler writing to history.
func NewScheduler(eval Evaluator, history *History, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		eval:    eval,
		history: history,
		block:   DefaultBlock,
		log:     log,
		now:     time.Now,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start schedules the report and returns. The schedule stops when ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("report: invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunPrevious(ctx); err != nil {
			s.log.Error("report: scheduled run failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("report: schedule: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.log.Info("report: scheduler started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for a running report to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info("report: scheduler stopped")
}

// RunPrevious reports on the UTC day before the current one.
func (s *Scheduler) RunPrevious(ctx context.Context) (Day, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	return s.Run(ctx, today.AddDate(0, 0, -1))
}

// Run computes and stores the report for the day starting at start.
func (s *Scheduler) Run(ctx context.Context, start time.Time) (Day, error) {
	t0 := s.now()
	df, err := s.eval.FractionOfDay(ctx, start, s.block)
	if err != nil {
		return Day{}, fmt.Errorf("report: %s: %w", start.Format(time.DateOnly), err)
	}

	d := Day{
		Start:     start.UTC(),
		Blocks:    df.Blocks,
		Observing: df.Observing,
		Fraction:  df.Fraction,
		Errors:    df.Errors,
		Created:   s.now().UTC(),
	}
	for _, v := range df.Vectors {
		for i, ok := range v {
			d.Passes[i] += ok
		}
	}
	if err := s.history.Save(ctx, d); err != nil {
		return Day{}, err
	}

	s.log.Info("report: day reported",
		"day", start.Format(time.DateOnly), "mjd", d.MJD(),
		"fraction", d.Fraction, "blocks", d.Blocks, "errors", d.Errors,
		"took", s.now().Sub(t0))
	if s.OnReport != nil {
		s.OnReport(d)
	}
	return d, nil
}
