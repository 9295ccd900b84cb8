package health

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dsa110/mnc/pkg/mjd"
	"github.com/dsa110/mnc/pkg/types"
)

// CriterionNames lists the criteria in status0..status2 order.
var CriterionNames = [3]string{"elevation", "dm_coverage", "gulp_status"}

// ErrNoStatus is returned for payloads without a numeric status field.
var ErrNoStatus = errors.New("health: payload has no numeric status")

// Verdict is a decoded /mon/status payload.
type Verdict struct {
	Observing bool
	Status    int
	// Criteria holds status0..status2; -1 marks a missing field.
	Criteria [3]int
	Skipped  []string
	Version  int
	MJD      float64
	Time     time.Time // zero when the payload carries no time
}

// ParseVerdict decodes a status payload.
func ParseVerdict(v types.Value) (Verdict, error) {
	var out Verdict
	st, ok := v.Field("status")
	if !ok {
		return out, ErrNoStatus
	}
	n, ok := st.AsNumber()
	if !ok {
		return out, ErrNoStatus
	}
	out.Status = int(n)
	out.Observing = out.Status == 1

	for i := range out.Criteria {
		out.Criteria[i] = -1
		f, ok := v.Field("status" + strconv.Itoa(i))
		if !ok {
			continue
		}
		if c, ok := f.AsNumber(); ok {
			out.Criteria[i] = int(c)
		}
	}

	if f, ok := v.Field("version"); ok {
		if n, ok := f.AsNumber(); ok {
			out.Version = int(n)
		}
	}
	if f, ok := v.Field("time"); ok {
		if m, ok := f.AsNumber(); ok && f.Finite() {
			out.MJD = m
			out.Time = mjd.ToTime(m)
		}
	}
	if f, ok := v.Field("skipped"); ok {
		items, ok := f.AsArray()
		if !ok {
			return out, fmt.Errorf("health: skipped is %s, want array", f.Kind())
		}
		for _, it := range items {
			if s, ok := it.AsString(); ok {
				out.Skipped = append(out.Skipped, s)
			}
		}
	}
	return out, nil
}

// Age is how old the verdict is at now. A verdict without a time has
// unknown age and reports ok=false.
func (v Verdict) Age(now time.Time) (time.Duration, bool) {
	if v.Time.IsZero() {
		return 0, false
	}
	return now.Sub(v.Time), true
}

// Stale reports whether the verdict is older than limit or has no time.
func (v Verdict) Stale(now time.Time, limit time.Duration) bool {
	age, ok := v.Age(now)
	return !ok || age > limit
}
