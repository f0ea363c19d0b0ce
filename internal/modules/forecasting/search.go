package forecasting

import (
	"fmt"
	"math"
)

// maxSearchModels bounds the number of fits in one stepwise search.
const maxSearchModels = 64

// SearchBounds limits the ARIMA order search.
type SearchBounds struct {
	MaxP int
	MaxD int
	MaxQ int
}

// ModelSearcher selects and fits a model for a single series.
type ModelSearcher interface {
	Search(series []float64) (*ARIMA, error)
}

// AutoSearcher performs a non-seasonal stepwise ARIMA order search by AIC.
type AutoSearcher struct {
	bounds SearchBounds
}

// NewAutoSearcher creates a stepwise searcher bounded by bounds.
func NewAutoSearcher(bounds SearchBounds) *AutoSearcher {
	return &AutoSearcher{bounds: bounds}
}

// Search chooses d with repeated KPSS tests, then walks (p,q) neighbours from
// a small set of starting models while AIC improves.
func (s *AutoSearcher) Search(series []float64) (*ARIMA, error) {
	d := ndiffs(series, s.bounds.MaxD)
	withConstant := d <= 1

	visited := make(map[[2]int]bool)
	var best *ARIMA
	var lastErr error
	fits := 0

	try := func(p, q int) bool {
		if p < 0 || q < 0 || p > s.bounds.MaxP || q > s.bounds.MaxQ {
			return false
		}
		key := [2]int{p, q}
		if visited[key] || fits >= maxSearchModels {
			return false
		}
		visited[key] = true
		fits++

		model, err := FitARIMA(series, Order{P: p, D: d, Q: q}, withConstant)
		if err != nil {
			lastErr = err
			return false
		}
		if best == nil || model.AIC < best.AIC {
			best = model
			return true
		}
		return false
	}

	start := [][2]int{
		{min(1, s.bounds.MaxP), min(1, s.bounds.MaxQ)},
		{0, 0},
		{min(1, s.bounds.MaxP), 0},
		{0, min(1, s.bounds.MaxQ)},
	}
	for _, pq := range start {
		try(pq[0], pq[1])
	}

	if best == nil {
		if lastErr == nil {
			lastErr = ErrTooFewObservations
		}
		return nil, fmt.Errorf("no admissible model with d=%d: %w", d, lastErr)
	}

	moves := [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}, {-1, -1}, {1, 1}, {-1, 1}, {1, -1}}
	for improved := true; improved; {
		improved = false
		p, q := best.Order.P, best.Order.Q
		for _, mv := range moves {
			if try(p+mv[0], q+mv[1]) {
				improved = true
				break
			}
		}
	}

	if math.IsNaN(best.AIC) {
		return nil, fmt.Errorf("%w: AIC undefined for %s", ErrNotConverged, best.Order)
	}
	return best, nil
}
