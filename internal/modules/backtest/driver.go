package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/esgfolio/internal/domain"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/internal/utils"
	"github.com/aristath/esgfolio/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Driver runs rolling-window backtests. Each period is a pure function of
// the shared read-only inputs, so periods may be computed concurrently; the
// output is always in period order.
type Driver struct {
	forecaster *forecasting.Forecaster
	covariance *optimization.CovarianceEstimator
	allocator  *optimization.Allocator
	log        zerolog.Logger
	now        func() time.Time
}

// NewDriver creates a new backtest driver.
func NewDriver(
	forecaster *forecasting.Forecaster,
	covariance *optimization.CovarianceEstimator,
	allocator *optimization.Allocator,
	log zerolog.Logger,
) *Driver {
	return &Driver{
		forecaster: forecaster,
		covariance: covariance,
		allocator:  allocator,
		log:        log.With().Str("component", "backtest").Logger(),
		now:        time.Now,
	}
}

// Run backtests returns with the given ESG scores. For every t in
// [0, len-W) it fits on rows [t, t+W) and scores the weights on row t+W.
func (d *Driver) Run(ctx context.Context, returns *domain.ReturnMatrix, esg domain.ESGVector, p Params) (*Result, error) {
	if err := returns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid return matrix: %w", err)
	}
	if err := optimization.ValidateCovarianceMethod(p.CovMethod, p.EWMALambda); err != nil {
		return nil, err
	}
	if p.TrainWindow < 1 {
		return nil, fmt.Errorf("%w: train window %d", ErrWindowTooShort, p.TrainWindow)
	}
	periods := returns.Len() - p.TrainWindow
	if periods <= 0 {
		return nil, fmt.Errorf("%w: %d rows for a %d-period window", ErrWindowTooShort, returns.Len(), p.TrainWindow)
	}
	scores, err := esg.Align(returns.Assets)
	if err != nil {
		return nil, err
	}
	if p.Workers < 1 {
		p.Workers = 1
	}

	timer := utils.NewTimer("backtest", d.log)
	fallbacksBefore := d.allocator.Fallbacks()

	d.log.Info().
		Int("periods", periods).
		Int("assets", returns.NumAssets()).
		Int("train_window", p.TrainWindow).
		Str("cov_method", p.CovMethod).
		Int("workers", p.Workers).
		Msg("Starting backtest")

	out := make([]Period, periods)
	stats := utils.NewPerformanceMetrics("backtest_period")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for t := 0; t < periods; t++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			period, err := d.step(returns, scores, p, t)
			if err != nil {
				return fmt.Errorf("period %d: %w", t, err)
			}
			out[t] = period
			stats.Record(time.Since(start))

			d.log.Debug().
				Int("period", t).
				Time("date", period.Date).
				Str("allocation_status", string(period.AllocationStatus)).
				Msg("Period complete")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	compound(out)

	result := &Result{
		ID:          uuid.New().String(),
		CreatedAt:   d.now().UTC().Truncate(time.Second),
		Assets:      append([]string(nil), returns.Assets...),
		Params:      p,
		Periods:     out,
		Diagnostics: diagnose(out),
	}
	result.Summary = Summarize(result)
	result.Diagnostics.Duration = timer.Stop()
	stats.LogMetrics(d.log)

	d.log.Info().
		Str("run_id", result.ID).
		Int("periods", periods).
		Int("forecast_fallbacks", result.Diagnostics.ForecastFallbacks).
		Int("allocation_fallbacks", result.Diagnostics.AllocationFallbacks).
		Int64("allocator_fallbacks_total", d.allocator.Fallbacks()-fallbacksBefore).
		Float64("total_return", result.Summary.TotalReturn).
		Dur("duration", result.Diagnostics.Duration).
		Msg("Backtest complete")

	return result, nil
}

// step computes period t using only rows [t, t+W] of returns.
func (d *Driver) step(returns *domain.ReturnMatrix, esg []float64, p Params, t int) (Period, error) {
	window := returns.Window(t, t+p.TrainWindow)

	forecasts := d.forecaster.ForecastWindow(window)

	sigma, err := d.covariance.Estimate(window, p.CovMethod, p.EWMALambda)
	if err != nil {
		return Period{}, err
	}

	alloc := d.allocator.Allocate(forecasting.Means(forecasts), sigma, esg, p.Allocation())

	realizedRow := t + p.TrainWindow
	return Period{
		Index:            t,
		Date:             returns.Dates[realizedRow],
		Weights:          alloc.Weights,
		Return:           realizedReturn(alloc.Weights, returns.Row(realizedRow)),
		AllocationStatus: alloc.Status,
		Forecasts:        forecasts,
	}, nil
}

// realizedReturn is wᵀr with missing returns contributing zero.
func realizedReturn(weights, row []float64) float64 {
	var sum float64
	for i, w := range weights {
		r := row[i]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		sum += w * r
	}
	return sum
}

// compound fills Cumulative as the running product of (1 + Return).
func compound(periods []Period) {
	returns := make([]float64, len(periods))
	for i, p := range periods {
		returns[i] = p.Return
	}
	for i, c := range formulas.CumulativeReturns(returns) {
		periods[i].Cumulative = c
	}
}

func diagnose(periods []Period) Diagnostics {
	diag := Diagnostics{Periods: len(periods)}
	for _, p := range periods {
		if p.AllocationStatus != optimization.StatusOptimal {
			diag.AllocationFallbacks++
		}
		for _, f := range p.Forecasts {
			switch f.Method {
			case forecasting.MethodAuto:
				diag.AutoForecasts++
			case forecasting.MethodFixed:
				diag.FixedForecasts++
			default:
				diag.ForecastFallbacks++
			}
		}
	}
	return diag
}
