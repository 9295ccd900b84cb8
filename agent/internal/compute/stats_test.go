package compute

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMedian(t *testing.T) {
	cases := []struct {
		name string
		in   []float64
		want float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Median(tc.in); !approx(got, tc.want) {
				t.Errorf("Median(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
	if !math.IsNaN(Median(nil)) {
		t.Error("Median(nil) should be NaN")
	}
}

func TestMedian_DoesNotModifyInput(t *testing.T) {
	in := []float64{3, 1, 2}
	Median(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Errorf("input modified: %v", in)
	}
}

func TestMeanSum(t *testing.T) {
	if got := Mean([]float64{1, 2, 3, 6}); !approx(got, 3) {
		t.Errorf("Mean = %v, want 3", got)
	}
	if !math.IsNaN(Mean(nil)) {
		t.Error("Mean(nil) should be NaN")
	}
	if got := Sum([]float64{0, 1, 3}); got != 4 {
		t.Errorf("Sum = %v, want 4", got)
	}
}

func TestElevation(t *testing.T) {
	t.Run("rms of deviations", func(t *testing.T) {
		s := Elevation([]float64{1, 2}, []float64{70.1, 69.9}, 64)
		if s.N != 2 {
			t.Fatalf("N = %d, want 2", s.N)
		}
		if !approx(s.Median, 70) {
			t.Errorf("Median = %v, want 70", s.Median)
		}
		if !approx(s.RMS, 0.1) {
			t.Errorf("RMS = %v, want 0.1", s.RMS)
		}
		if s.Frac6 != 0 || s.Frac30 != 0 {
			t.Errorf("Frac6/Frac30 = %v/%v, want 0/0", s.Frac6, s.Frac30)
		}
	})

	t.Run("outer antennas ignored", func(t *testing.T) {
		s := Elevation([]float64{1, 2, 3, 100}, []float64{70, 70, 70, 10}, 64)
		if s.N != 3 {
			t.Fatalf("N = %d, want 3", s.N)
		}
		if s.RMS != 0 {
			t.Errorf("RMS = %v, want 0", s.RMS)
		}
	})

	t.Run("arcminute fractions", func(t *testing.T) {
		// median 70; deviations 0, 0, 0.2, 1.0
		s := Elevation([]float64{1, 2, 3, 4}, []float64{70, 70, 70.2, 69}, 64)
		if !approx(s.Frac6, 0.5) {
			t.Errorf("Frac6 = %v, want 0.5", s.Frac6)
		}
		if !approx(s.Frac30, 0.25) {
			t.Errorf("Frac30 = %v, want 0.25", s.Frac30)
		}
	})

	t.Run("no core samples", func(t *testing.T) {
		s := Elevation([]float64{80, 90}, []float64{70, 71}, 64)
		if s.N != 0 {
			t.Errorf("N = %d, want 0", s.N)
		}
	})
}
