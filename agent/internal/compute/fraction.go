package compute

import (
	"context"
	"time"
)

// Day is the span FractionOfDay covers.
const Day = 24 * time.Hour

// DayFraction summarises one day of evaluations.
type DayFraction struct {
	Start time.Time
	Block time.Duration

	// Blocks is the number of evaluations, Observing the number whose
	// overall verdict was true.
	Blocks    int
	Observing int
	Fraction  float64

	// Vectors holds one row per block, 1 where the criterion passed.
	Vectors [][NumCriteria]int

	// Errors counts blocks whose queries failed. They count as not
	// observing.
	Errors int
}

// FractionOfDay evaluates the day beginning at start in consecutive blocks
// and reports the fraction in which the array was observing. Each block is
// judged on the window ending at its start time, as in a live cycle. It
// returns early only when ctx is cancelled.
func (m *Monitor) FractionOfDay(ctx context.Context, start time.Time, block time.Duration) (*DayFraction, error) {
	if block <= 0 {
		block = m.Thresholds().Window
	}
	n := int(Day / block)
	out := &DayFraction{
		Start:   start,
		Block:   block,
		Blocks:  n,
		Vectors: make([][NumCriteria]int, n),
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := start.Add(time.Duration(i) * block)
		res, err := m.Evaluate(ctx, at)
		if err != nil {
			out.Errors++
			m.log.Debug("compute: day block failed", "at", at, "err", err)
			continue
		}
		if res.Overall {
			out.Observing++
		}
		for j, ok := range res.Vector() {
			if ok {
				out.Vectors[i][j] = 1
			}
		}
	}
	if n > 0 {
		out.Fraction = float64(out.Observing) / float64(n)
	}
	m.log.Info("compute: day fraction computed",
		"start", start, "blocks", n, "observing", out.Observing,
		"fraction", out.Fraction, "errors", out.Errors)
	return out, nil
}
