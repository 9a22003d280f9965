package tide

import (
	"errors"
	"testing"
)

func TestFindIndexFirstGreaterOrEqual(t *testing.T) {
	values := []float64{1.0, 2.0, 3.0}
	t.Run("ascending lookups", func(t *testing.T) {
		tests := []struct {
			target float64
			want   int
		}{
			{-5.0, 0},
			{1.0, 0},
			{1.2, 1},
			{2.0, 1},
			{3.0, 2},
		}
		for _, tc := range tests {
			got, err := FindIndexFirstGreaterOrEqual(values, tc.target, 1e-6)
			if err != nil {
				t.Fatalf("lookup of %v failed: %s", tc.target, err)
			}
			if got != tc.want {
				t.Errorf("lookup of %v: expected %d, got %d", tc.target, tc.want, got)
			}
		}
	})
	t.Run("target above every value fails", func(t *testing.T) {
		if _, err := FindIndexFirstGreaterOrEqual(values, 10.0, 1e-6); !errors.Is(err, ErrNoMatch) {
			t.Errorf("expected ErrNoMatch, got %v", err)
		}
	})
	t.Run("tolerance admits values just below target", func(t *testing.T) {
		got, err := FindIndexFirstGreaterOrEqual([]int64{0, 600, 1200}, 601, 1)
		if err != nil || got != 1 {
			t.Errorf("expected index 1, got %d (%v)", got, err)
		}
	})
	t.Run("descending input", func(t *testing.T) {
		got, err := FindIndexFirstGreaterOrEqual([]float64{3, 2, 1}, 2.5, 0)
		if err != nil || got != 0 {
			t.Errorf("expected index 0, got %d (%v)", got, err)
		}
		if _, err = FindIndexFirstGreaterOrEqual([]float64{3, 2, 1}, 4, 0); !errors.Is(err, ErrNoMatch) {
			t.Errorf("expected ErrNoMatch, got %v", err)
		}
	})
	t.Run("non-monotonic input fails", func(t *testing.T) {
		for _, in := range [][]float64{{1, 1, 2}, {1, 3, 2}, {3, 1, 2}} {
			if _, err := FindIndexFirstGreaterOrEqual(in, 1, 0); !errors.Is(err, ErrNotMonotonic) {
				t.Errorf("expected ErrNotMonotonic for %v, got %v", in, err)
			}
		}
	})
	t.Run("empty input fails", func(t *testing.T) {
		if _, err := FindIndexFirstGreaterOrEqual([]int64{}, 1, 0); !errors.Is(err, ErrNoMatch) {
			t.Errorf("expected ErrNoMatch, got %v", err)
		}
	})
}
