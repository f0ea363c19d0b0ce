// Package backtest runs the rolling-window forecast/allocate loop and stores its results.
package backtest

import (
	"errors"
	"time"

	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/optimization"
)

var (
	// ErrWindowTooShort is returned when the history cannot cover one training window plus one realized row.
	ErrWindowTooShort = errors.New("not enough history for the training window")
	// ErrRunNotFound is returned when a stored run does not exist.
	ErrRunNotFound = errors.New("backtest run not found")
)

// PeriodsPerYear annualises weekly statistics.
const PeriodsPerYear = 52

// Params configures one backtest run.
type Params struct {
	TrainWindow int     `json:"train_window_weeks"`
	CovMethod   string  `json:"cov_method"`
	EWMALambda  float64 `json:"ewma_lambda"`
	Alpha       float64 `json:"alpha_risk_aversion"`
	Beta        float64 `json:"beta_esg_pref"`
	WeightMax   float64 `json:"weight_max"`
	Workers     int     `json:"workers"`
}

// Allocation returns the allocator preferences.
func (p Params) Allocation() optimization.Params {
	return optimization.Params{Alpha: p.Alpha, Beta: p.Beta, WeightMax: p.WeightMax}
}

// Period is one rebalance: weights fitted on rows [Index, Index+W) and scored on row Index+W.
type Period struct {
	Index            int                    `json:"index"`
	Date             time.Time              `json:"date"`
	Weights          []float64              `json:"weights"`
	Return           float64                `json:"return"`
	Cumulative       float64                `json:"cumulative"`
	AllocationStatus optimization.Status    `json:"allocation_status"`
	Forecasts        []forecasting.Forecast `json:"forecasts,omitempty"`
}

// Diagnostics counts local degradations during a run.
type Diagnostics struct {
	Periods             int           `json:"periods"`
	AutoForecasts       int           `json:"auto_forecasts"`
	FixedForecasts      int           `json:"fixed_forecasts"`
	ForecastFallbacks   int           `json:"forecast_fallbacks"`
	AllocationFallbacks int           `json:"allocation_fallbacks"`
	Duration            time.Duration `json:"duration_ns"`
}

// Summary holds performance statistics of the realized return series.
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	AvgHoldings      float64 `json:"avg_holdings"`
}

// Result is the output of one run. It is not modified after Run returns.
type Result struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	Assets      []string    `json:"assets"`
	Params      Params      `json:"params"`
	Periods     []Period    `json:"periods"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Summary     Summary     `json:"summary"`
}

// Dates returns the realized-row date of every period.
func (r *Result) Dates() []time.Time {
	out := make([]time.Time, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Date
	}
	return out
}

// Weights returns the period × asset weight table.
func (r *Result) Weights() [][]float64 {
	out := make([][]float64, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Weights
	}
	return out
}

// Returns returns the realized portfolio return series.
func (r *Result) Returns() []float64 {
	out := make([]float64, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Return
	}
	return out
}

// Cumulative returns the running product of (1 + return).
func (r *Result) Cumulative() []float64 {
	out := make([]float64, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Cumulative
	}
	return out
}

// RunInfo is the stored header of a run, without its periods.
type RunInfo struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	Assets      []string    `json:"assets"`
	Params      Params      `json:"params"`
	Diagnostics Diagnostics `json:"diagnostics"`
	Summary     Summary     `json:"summary"`
	PeriodCount int         `json:"period_count"`
}
