// Package esg collects per-asset ESG risk scores and normalizes them into
// the static preference vector consumed by the allocator.
package esg

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/esgfolio/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MethodZScoreTo01 inverts raw risk scores, z-scores them and rescales to [0,1].
const MethodZScoreTo01 = "zscore_to_01"

// ErrUnknownMethod is returned for unsupported normalization methods.
var ErrUnknownMethod = errors.New("unknown ESG normalization method")

// Normalize turns raw ESG risk scores (lower is better) into preference
// scores in [0,1] aligned with assets. Missing or nil scores are filled with
// the median of the available inverted scores. A constant input, or one with
// no scores at all, yields all zeros.
func Normalize(raw map[string]*float64, assets []string, method string) (domain.ESGVector, error) {
	if method != MethodZScoreTo01 {
		return domain.ESGVector{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	n := len(assets)
	scores := make([]float64, n)
	present := make([]float64, 0, n)
	for i, a := range assets {
		scores[i] = math.NaN()
		if s, ok := raw[a]; ok && s != nil && !math.IsNaN(*s) && !math.IsInf(*s, 0) {
			scores[i] = *s
			present = append(present, *s)
		}
	}

	out := domain.ESGVector{Assets: assets, Scores: make([]float64, n)}
	if len(present) == 0 {
		return out, nil
	}

	// Lower raw risk is better: invert against the worst observed score.
	worst := floats.Max(present)
	inverted := make([]float64, 0, len(present))
	for i := range scores {
		if !math.IsNaN(scores[i]) {
			scores[i] = worst - scores[i]
			inverted = append(inverted, scores[i])
		}
	}

	fill := median(inverted)
	for i := range scores {
		if math.IsNaN(scores[i]) {
			scores[i] = fill
		}
	}

	mean, std := stat.MeanStdDev(scores, nil)
	if n < 2 || std == 0 || math.IsNaN(std) {
		return out, nil
	}
	for i := range scores {
		scores[i] = (scores[i] - mean) / std
	}

	lo, hi := floats.Min(scores), floats.Max(scores)
	for i, z := range scores {
		out.Scores[i] = (z - lo) / (hi - lo)
	}
	return out, nil
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
