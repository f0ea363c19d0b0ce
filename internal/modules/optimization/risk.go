package optimization

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/esgfolio/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Covariance methods.
const (
	CovSample     = "sample"
	CovEWMA       = "ewma"
	CovLedoitWolf = "ledoit_wolf"
)

var (
	// ErrInvalidEWMALambda is returned when the ewma decay factor is outside (0,1).
	ErrInvalidEWMALambda = errors.New("ewma lambda must lie in (0,1)")
	// ErrUnknownCovarianceMethod is returned for an unsupported covariance method.
	ErrUnknownCovarianceMethod = errors.New("unknown covariance method")
)

// EWMASpan converts a decay factor into the equivalent span, 2/(1-λ) - 1.
func EWMASpan(lambda float64) (float64, error) {
	if math.IsNaN(lambda) || lambda <= 0 || lambda >= 1 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidEWMALambda, lambda)
	}
	return 2/(1-lambda) - 1, nil
}

// ValidateCovarianceMethod checks a method/lambda pair before any estimation.
func ValidateCovarianceMethod(method string, lambda float64) error {
	switch method {
	case CovSample, CovLedoitWolf:
		return nil
	case CovEWMA:
		_, err := EWMASpan(lambda)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCovarianceMethod, method)
	}
}

// CovarianceEstimator builds the asset covariance matrix for one training window.
// Each call recomputes from the window alone. Missing values are handled
// pairwise: a pair (i,j) uses only the rows where both assets are present.
type CovarianceEstimator struct {
	log zerolog.Logger
}

// NewCovarianceEstimator creates a new covariance estimator.
func NewCovarianceEstimator(log zerolog.Logger) *CovarianceEstimator {
	return &CovarianceEstimator{
		log: log.With().Str("component", "risk_model").Logger(),
	}
}

// Estimate returns the covariance of window's columns. Entries backed by
// fewer than two paired observations are NaN.
func (e *CovarianceEstimator) Estimate(window *domain.ReturnMatrix, method string, lambda float64) (*mat.SymDense, error) {
	if err := ValidateCovarianceMethod(method, lambda); err != nil {
		return nil, err
	}
	n := window.NumAssets()
	if n == 0 {
		return nil, fmt.Errorf("%w: window has no assets", domain.ErrDimensionMismatch)
	}

	var cov [][]float64
	switch method {
	case CovSample:
		cov = sampleCovariance(window)
	case CovLedoitWolf:
		cov = applyLedoitWolfShrinkage(sampleCovariance(window))
	case CovEWMA:
		span, _ := EWMASpan(lambda)
		cov = ewmaCovariance(window, 2/(span+1))
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, cov[i][j])
		}
	}

	e.log.Debug().
		Str("method", method).
		Int("assets", n).
		Int("observations", window.Len()).
		Msg("Estimated covariance")

	return out, nil
}

// pairedColumns returns the rows where both columns are finite, together with
// their row indices.
func pairedColumns(window *domain.ReturnMatrix, i, j int) (xi, xj []float64, rows []int) {
	for t := 0; t < window.Len(); t++ {
		row := window.Row(t)
		a, b := row[i], row[j]
		if isMissing(a) || isMissing(b) {
			continue
		}
		xi = append(xi, a)
		xj = append(xj, b)
		rows = append(rows, t)
	}
	return xi, xj, rows
}

// sampleCovariance is the unbiased (N-1) pairwise-complete sample covariance.
func sampleCovariance(window *domain.ReturnMatrix) [][]float64 {
	n := window.NumAssets()
	cov := newSquare(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			xi, xj, _ := pairedColumns(window, i, j)
			val := math.NaN()
			if len(xi) >= 2 {
				val = stat.Covariance(xi, xj, nil)
			}
			cov[i][j] = val
			cov[j][i] = val
		}
	}
	return cov
}

// ewmaCovariance computes the bias-corrected exponentially weighted
// covariance at the last window row. Observation weights decay with the row
// position, so missing rows still age the remaining observations.
func ewmaCovariance(window *domain.ReturnMatrix, alpha float64) [][]float64 {
	n := window.NumAssets()
	last := window.Len() - 1
	cov := newSquare(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			xi, xj, rows := pairedColumns(window, i, j)
			val := math.NaN()
			if len(rows) >= 2 {
				weights := make([]float64, len(rows))
				var sum float64
				for k, t := range rows {
					weights[k] = math.Pow(1-alpha, float64(last-t))
					sum += weights[k]
				}
				for k := range weights {
					weights[k] /= sum
				}
				val = weightedCovariance(xi, xj, weights)
			}
			cov[i][j] = val
			cov[j][i] = val
		}
	}
	return cov
}

// weightedCovariance computes a covariance with normalized observation
// weights and the effective-sample correction denom = 1 - sum(w^2).
func weightedCovariance(x, y, weights []float64) float64 {
	var mx, my, sumW2 float64
	for k, w := range weights {
		mx += w * x[k]
		my += w * y[k]
		sumW2 += w * w
	}
	denom := 1.0 - sumW2
	if denom <= 0 {
		return math.NaN()
	}
	var s float64
	for k, w := range weights {
		s += w * (x[k] - mx) * (y[k] - my)
	}
	return s / denom
}

// applyLedoitWolfShrinkage shrinks a sample covariance matrix towards a
// constant-covariance target (average variance on the diagonal, average
// covariance off it).
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for large-dimensional covariance matrices"
func applyLedoitWolfShrinkage(sampleCov [][]float64) [][]float64 {
	n := len(sampleCov)
	if n < 2 || !allFinite(sampleCov) {
		return sampleCov
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		if avgVar > 0 {
			return avgCov
		}
		return 0
	}

	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff, meanSample, sumSqSample float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sampleCov[i][j] - target(i, j)
				sumSqDiff += diff * diff
				meanSample += sampleCov[i][j]
				sumSqSample += sampleCov[i][j] * sampleCov[i][j]
			}
		}
		count := float64(n * n)
		meanSqDiff := sumSqDiff / count
		meanSample /= count
		varSample := sumSqSample/count - meanSample*meanSample

		if varSample > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
		}
	}

	shrunk := newSquare(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target(i, j)
		}
	}
	return shrunk
}

func newSquare(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	return out
}

func allFinite(m [][]float64) bool {
	for _, row := range m {
		for _, v := range row {
			if isMissing(v) {
				return false
			}
		}
	}
	return true
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
