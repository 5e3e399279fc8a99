package race

import "testing"

func TestCalculatePercentile_Interpolates(t *testing.T) {
	data := []int64{10, 20, 30, 40}

	if got := CalculatePercentile(data, 50); got != 25 {
		t.Errorf("p50: got %v, want 25", got)
	}
	if got := CalculatePercentile(data, 100); got != 40 {
		t.Errorf("p100: got %v, want 40", got)
	}
	if got := CalculatePercentile(data, 0); got != 10 {
		t.Errorf("p0: got %v, want 10", got)
	}
	if got := CalculatePercentile([]float64{}, 90); got != 0 {
		t.Errorf("empty: got %v, want 0", got)
	}
}

func TestCalculateMedian_DoesNotMutateInput(t *testing.T) {
	data := []int{5, 1, 3}

	if got := CalculateMedian(data); got != 3 {
		t.Errorf("median: got %v, want 3", got)
	}
	if data[0] != 5 || data[1] != 1 || data[2] != 3 {
		t.Errorf("input was reordered: %v", data)
	}
}

func TestCalculateMean(t *testing.T) {
	if got := CalculateMean([]int{1, 2, 3, 4}); got != 2.5 {
		t.Errorf("mean: got %v, want 2.5", got)
	}
	if got := CalculateMean([]int{}); got != 0 {
		t.Errorf("empty mean: got %v, want 0", got)
	}
}
