package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dsa110/mnc/pkg/types"
)

// condition is a parsed "field op value" rule expression.
type condition struct {
	path []string // dotted field path into the payload
	op   string
	rhs  string
}

// parseCondition parses expressions of the form field op value:
//
//	status == 0
//	status1 != 1
//	rf_pwr < -40
//	criteria.elevation == fail
//	noise_a_on == true
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return condition{}, fmt.Errorf("alerts: condition %q: want \"field op value\"", cond)
	}
	switch parts[1] {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("alerts: condition %q: unknown operator %q", cond, parts[1])
	}
	return condition{path: strings.Split(parts[0], "."), op: parts[1], rhs: parts[2]}, nil
}

// eval tests the condition against a payload. It returns whether the rule
// fires and the field value that was compared. A payload without the field
// never fires.
func (c condition) eval(v types.Value) (bool, types.Value) {
	got := v
	for _, name := range c.path {
		f, ok := got.Field(name)
		if !ok {
			return false, types.Null()
		}
		got = f
	}

	switch got.Kind() {
	case types.KindNumber:
		n, _ := got.AsNumber()
		threshold, err := strconv.ParseFloat(c.rhs, 64)
		if err != nil {
			return false, got
		}
		return compareFloat(n, c.op, threshold), got

	case types.KindBool:
		b, _ := got.AsBool()
		want, err := strconv.ParseBool(c.rhs)
		if err != nil {
			return false, got
		}
		return compareEq(b == want, c.op), got

	case types.KindString:
		s, _ := got.AsString()
		return compareEq(s == c.rhs, c.op), got

	default:
		return false, got
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

// compareEq applies == or != given whether the operands are equal.
// Ordering operators never match non-numeric fields.
func compareEq(equal bool, op string) bool {
	switch op {
	case "==":
		return equal
	case "!=":
		return !equal
	default:
		return false
	}
}
