package forecasting

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/aristath/esgfolio/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Method identifies which path produced a forecast.
type Method string

const (
	// MethodAuto is a stepwise auto-selected ARIMA model.
	MethodAuto Method = "auto_arima"
	// MethodFixed is the fixed ARIMA(1,0,1) model.
	MethodFixed Method = "arima_101"
	// MethodFallback is the sample mean and variance of the window.
	MethodFallback Method = "sample_moments"
)

// ciWidthToStdErr converts the width of a 95% normal interval into a standard error.
const ciWidthToStdErr = 3.92

// FixedOrder is the model used when the auto search is disabled or unavailable.
var FixedOrder = Order{P: 1, D: 0, Q: 1}

// Forecast is the one-step-ahead outcome for a single asset.
type Forecast struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Method   Method  `json:"method"`
	Order    *Order  `json:"order,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Fitted reports whether a model (rather than the fallback) produced f.
func (f Forecast) Fitted() bool {
	return f.Method != MethodFallback
}

// Options controls the forecasting path.
type Options struct {
	UseAutoSearch bool
	Bounds        SearchBounds
}

// Forecaster produces one-step forecasts. It is safe for concurrent use.
type Forecaster struct {
	opts     Options
	searcher ModelSearcher
	log      zerolog.Logger

	noticeEmitted atomic.Bool
}

// NewForecaster creates a forecaster. A nil searcher with UseAutoSearch set
// degrades to the fixed model and logs a single notice.
func NewForecaster(opts Options, searcher ModelSearcher, log zerolog.Logger) *Forecaster {
	return &Forecaster{
		opts:     opts,
		searcher: searcher,
		log:      log.With().Str("component", "forecaster").Logger(),
	}
}

// Forecast returns the one-step forecast for series. Missing values are
// dropped first. It never fails: any fit problem yields the sample moments.
func (f *Forecaster) Forecast(series []float64) (out Forecast) {
	clean := domain.DropMissing(series)

	defer func() {
		if r := recover(); r != nil {
			out = f.fallback(clean, fmt.Sprintf("panic: %v", r))
		}
	}()

	var (
		model  *ARIMA
		method Method
		err    error
	)

	switch {
	case f.opts.UseAutoSearch && f.searcher != nil:
		method = MethodAuto
		model, err = f.searcher.Search(clean)
	default:
		if f.opts.UseAutoSearch && f.noticeEmitted.CompareAndSwap(false, true) {
			f.log.Info().Msg("Auto ARIMA search unavailable, using fixed ARIMA(1,0,1)")
		}
		method = MethodFixed
		model, err = FitARIMA(clean, FixedOrder, true)
	}
	if err != nil {
		return f.fallback(clean, err.Error())
	}

	pred := model.Forecast(0.05)

	var variance float64
	if method == MethodAuto {
		stdErr := (pred.Upper - pred.Lower) / ciWidthToStdErr
		variance = stdErr * stdErr
	} else {
		variance = pred.StdErr * pred.StdErr
	}

	if !finite(pred.Mean) || !finite(variance) {
		return f.fallback(clean, "non-finite forecast")
	}

	order := model.Order
	return Forecast{
		Mean:     pred.Mean,
		Variance: variance,
		Method:   method,
		Order:    &order,
	}
}

// ForecastWindow forecasts every column of window.
func (f *Forecaster) ForecastWindow(window *domain.ReturnMatrix) []Forecast {
	out := make([]Forecast, window.NumAssets())
	for j := range out {
		out[j] = f.Forecast(window.Column(j))
	}
	return out
}

func (f *Forecaster) fallback(clean []float64, reason string) Forecast {
	f.log.Debug().Str("reason", reason).Int("observations", len(clean)).Msg("Forecast fallback to sample moments")

	mean, variance := sampleMoments(clean)
	return Forecast{
		Mean:     mean,
		Variance: variance,
		Method:   MethodFallback,
		Reason:   reason,
	}
}

// sampleMoments returns the mean and population variance, or zeros for an empty series.
func sampleMoments(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(x, nil)
	if !finite(mean) {
		mean = 0
	}
	if !finite(variance) || variance < 0 {
		variance = 0
	}
	return mean, variance
}

// Means extracts the expected-return vector from forecasts.
func Means(forecasts []Forecast) []float64 {
	out := make([]float64, len(forecasts))
	for i, fc := range forecasts {
		out[i] = fc.Mean
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
