package cnf

import (
	"math"
	"testing"

	"github.com/dsa110/mnc/pkg/types"
)

func TestCheckLimits(t *testing.T) {
	limits := DefaultData()["minmax_ant"]
	point := types.Object(map[string]types.Value{
		"ant_num":       types.Int(24),
		"ant_el":        types.Number(150),
		"motor_temp":    types.Number(21.5),
		"lna_current_a": types.Number(math.NaN()),
		"brake_on":      types.Bool(true),
		"rf_pwr_a":      types.Number(-70),
	})
	got := CheckLimits(limits, point)

	var names []string
	for _, v := range got {
		names = append(names, v.Name)
	}
	want := []string{"ant_el", "lna_current_a"}
	if len(names) != len(want) {
		t.Fatalf("violations = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("violation %d = %s, want %s", i, names[i], want[i])
		}
	}
	if s := got[0].String(); s != "ant_el=150 outside [0, 145]" {
		t.Errorf("String = %q", s)
	}
}

func TestCheckLimits_BoolRange(t *testing.T) {
	limits := types.Object(map[string]types.Value{
		"sim": types.Array(types.Bool(false), types.Bool(false)),
	})
	bad := types.Object(map[string]types.Value{"sim": types.Bool(true)})
	if v := CheckLimits(limits, bad); len(v) != 1 {
		t.Errorf("got %v, want one violation", v)
	}
}
