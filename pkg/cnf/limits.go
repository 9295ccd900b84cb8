package cnf

import (
	"fmt"

	"github.com/dsa110/mnc/pkg/types"
)

// Violation is a monitor point outside its [min, max] range.
type Violation struct {
	Name  string
	Value types.Value
	Min   types.Value
	Max   types.Value
}

func (v Violation) String() string {
	return fmt.Sprintf("%s=%v outside [%v, %v]", v.Name, v.Value, v.Min, v.Max)
}

// CheckLimits compares each field of point named in limits (a minmax_* table
// of two-element [min, max] arrays) and returns the violations in name order.
// Fields absent from point and limits that are not numeric or boolean pairs
// are ignored. A non-finite reading is always a violation.
func CheckLimits(limits, point types.Value) []Violation {
	var out []Violation
	for _, name := range limits.Keys() {
		lim, _ := limits.Field(name)
		pair, ok := lim.AsArray()
		if !ok || len(pair) != 2 {
			continue
		}
		got, ok := point.Field(name)
		if !ok {
			continue
		}
		if !inRange(got, pair[0], pair[1]) {
			out = append(out, Violation{Name: name, Value: got, Min: pair[0], Max: pair[1]})
		}
	}
	return out
}

func inRange(v, lo, hi types.Value) bool {
	if b, ok := v.AsBool(); ok {
		l, ok1 := lo.AsBool()
		h, ok2 := hi.AsBool()
		if !ok1 || !ok2 {
			return true
		}
		return b == l || b == h
	}
	n, ok := v.AsNumber()
	if !ok {
		return true
	}
	if !v.Finite() {
		return false
	}
	l, ok1 := lo.AsNumber()
	h, ok2 := hi.AsNumber()
	if !ok1 || !ok2 {
		return true
	}
	return n >= l && n <= h
}
