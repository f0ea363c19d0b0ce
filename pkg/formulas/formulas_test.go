package formulas

import (
	"math"
	"testing"
)

func TestCumulativeReturns(t *testing.T) {
	got := CumulativeReturns([]float64{0.01, -0.02, 0.03})
	want := []float64{1.01, 0.9898, 1.019494}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("cumulative[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if len(CumulativeReturns(nil)) != 0 {
		t.Error("expected empty cumulative series")
	}
}

func TestAnnualizedReturn(t *testing.T) {
	tests := []struct {
		name      string
		returns   []float64
		expected  float64
		tolerance float64
	}{
		{"empty", nil, 0, 0},
		{"one year flat", make([]float64, 52), 0, 1e-12},
		{"one year of 1% weekly", makeReturns(0.01, 52), math.Pow(1.01, 52) - 1, 1e-9},
		{"two years doubling", makeReturns(math.Pow(2, 1.0/104)-1, 104), math.Sqrt(2) - 1, 1e-9},
		{"total loss", []float64{-1, 0.1}, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnnualizedReturn(tt.returns, 52)
			if math.Abs(got-tt.expected) > tt.tolerance {
				t.Errorf("AnnualizedReturn() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"empty", nil, 0},
		{"monotonic up", []float64{1.01, 1.02, 1.05}, 0},
		{"drop from start", []float64{0.9, 1.1}, 0.1},
		{"peak then trough", []float64{1.2, 0.9, 1.0, 1.3}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxDrawdown(tt.values, 1)
			if math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("MaxDrawdown() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSharpeRatio(t *testing.T) {
	if got := SharpeRatio([]float64{0.01}, 0, 52); got != 0 {
		t.Errorf("single observation: got %v, want 0", got)
	}
	if got := SharpeRatio(makeReturns(0, 10), 0, 52); got != 0 {
		t.Errorf("constant returns: got %v, want 0", got)
	}

	returns := []float64{0.01, -0.01, 0.02, 0.0}
	mean := 0.005
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	want := mean / math.Sqrt(ss/3) * math.Sqrt(52)
	if got := SharpeRatio(returns, 0, 52); math.Abs(got-want) > 1e-12 {
		t.Errorf("SharpeRatio() = %v, want %v", got, want)
	}
}

func TestAnnualizedVolatility(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.01, -0.01}
	want := StdDev(returns) * math.Sqrt(52)
	if got := AnnualizedVolatility(returns, 52); math.Abs(got-want) > 1e-15 {
		t.Errorf("AnnualizedVolatility() = %v, want %v", got, want)
	}
	if got := AnnualizedVolatility([]float64{0.5}, 52); got != 0 {
		t.Errorf("single value: got %v, want 0", got)
	}
}

func makeReturns(r float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r
	}
	return out
}
