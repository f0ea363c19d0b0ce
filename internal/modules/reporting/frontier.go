package reporting

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"

	"github.com/aristath/esgfolio/internal/domain"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/pkg/formulas"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FrontierPoint is one simulated long-only portfolio.
type FrontierPoint struct {
	Return     float64 // annualized expected return
	Volatility float64 // annualized volatility
	ESG        float64 // weighted ESG score
}

// SimulateFrontier draws n random fully-invested portfolios and scores each
// on annualized mean return, annualized volatility and weighted ESG, using
// full-history sample moments. The same seed yields the same points.
func SimulateFrontier(estimator *optimization.CovarianceEstimator, returns *domain.ReturnMatrix, esg []float64, n int, seed uint64) ([]FrontierPoint, error) {
	assets := returns.NumAssets()
	if len(esg) != assets {
		return nil, fmt.Errorf("%w: %d ESG scores for %d assets", domain.ErrDimensionMismatch, len(esg), assets)
	}

	sigma, err := estimator.Estimate(returns, optimization.CovSample, 0)
	if err != nil {
		return nil, err
	}
	means := make([]float64, assets)
	for j := range means {
		means[j] = formulas.Mean(domain.DropMissing(returns.Column(j)))
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	points := make([]FrontierPoint, 0, n)
	w := make([]float64, assets)
	for k := 0; k < n; k++ {
		for j := range w {
			w[j] = rng.Float64()
		}
		floats.Scale(1/floats.Sum(w), w)

		wv := mat.NewVecDense(assets, w)
		variance := mat.Inner(wv, sigma, wv)
		points = append(points, FrontierPoint{
			Return:     floats.Dot(means, w) * backtest.PeriodsPerYear,
			Volatility: math.Sqrt(math.Max(variance, 0) * backtest.PeriodsPerYear),
			ESG:        floats.Dot(w, esg),
		})
	}
	return points, nil
}

// WriteFrontier writes simulated points to <run dir>/frontier.csv.
func (w *Writer) WriteFrontier(runDir string, points []FrontierPoint) error {
	rows := [][]string{{"annual_volatility", "annual_return", "esg_score"}}
	for _, p := range points {
		rows = append(rows, []string{formatFloat(p.Volatility), formatFloat(p.Return), formatFloat(p.ESG)})
	}
	if err := writeCSV(filepath.Join(runDir, FrontierFile), rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", FrontierFile, err)
	}
	return nil
}
