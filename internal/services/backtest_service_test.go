package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/domain"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/modules/esg"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/historical"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/internal/modules/reporting"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrices struct {
	frame *historical.PriceFrame
	err   error
}

func (s *stubPrices) LoadOrFetch(context.Context, []string) (*historical.PriceFrame, error) {
	return s.frame, s.err
}

type recordingRunner struct {
	returns *domain.ReturnMatrix
	esg     domain.ESGVector
	params  backtest.Params
	err     error
}

func (r *recordingRunner) Run(_ context.Context, returns *domain.ReturnMatrix, esg domain.ESGVector, p backtest.Params) (*backtest.Result, error) {
	r.returns, r.esg, r.params = returns, esg, p
	if r.err != nil {
		return nil, r.err
	}
	return &backtest.Result{ID: "stub", Assets: returns.Assets}, nil
}

type recordingStore struct {
	saved []*backtest.Result
}

func (s *recordingStore) Save(_ context.Context, res *backtest.Result) error {
	s.saved = append(s.saved, res)
	return nil
}

func silentLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func testStrategy() *config.Strategy {
	s := config.DefaultStrategy()
	s.Tickers = []string{"AAA", "BBB", "CCC"}
	s.Backtest.TrainWindowWeeks = 12
	s.Risk.CovMethod = "sample"
	s.Opt.WeightMax = 0.6
	s.ARIMA.UseAutoSearch = false
	return &s
}

func testFrame(weeks int) *historical.PriceFrame {
	tickers := []string{"CCC", "BBB", "AAA", "DDD"}
	series := make(map[string][]historical.PricePoint, len(tickers))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for j, ticker := range tickers {
		price := 100.0
		for i := 0; i < weeks; i++ {
			price *= 1 + 0.01*math.Sin(float64(i*(j+2))) + 0.001*float64(j)
			series[ticker] = append(series[ticker], historical.PricePoint{Date: start.AddDate(0, 0, 7*i), Close: price})
		}
	}
	return historical.NewPriceFrame(tickers, series)
}

func ptr(v float64) *float64 { return &v }

func newScores() *esg.Collector {
	inline := esg.NewInlineSource(map[string]*float64{"AAA": ptr(10), "BBB": ptr(30)})
	return esg.NewCollector([]esg.Source{inline}, silentLogger())
}

func TestBacktestService_PreparesInputs(t *testing.T) {
	runner := &recordingRunner{}
	store := &recordingStore{}
	strategy := testStrategy()

	service := NewBacktestService(strategy, &stubPrices{frame: testFrame(20)}, newScores(), runner, store, nil,
		optimization.NewCovarianceEstimator(silentLogger()), silentLogger())

	outcome, err := service.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stub", outcome.Result.ID)
	assert.Empty(t, outcome.ReportDir)
	assert.Len(t, store.saved, 1)

	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, runner.returns.Assets)
	assert.Equal(t, 19, runner.returns.Len())
	assert.Equal(t, []float64{1, 0, 0.5}, runner.esg.Scores)
	assert.Equal(t, ParamsFromStrategy(strategy), runner.params)
}

func TestBacktestService_EndToEnd(t *testing.T) {
	log := silentLogger()
	driver := backtest.NewDriver(
		forecasting.NewForecaster(forecasting.Options{}, nil, log),
		optimization.NewCovarianceEstimator(log),
		optimization.NewAllocator(log),
		log,
	)
	reportsDir := t.TempDir()
	writer := reporting.NewWriter(reportsDir, nil, log)

	service := NewBacktestService(testStrategy(), &stubPrices{frame: testFrame(30)}, newScores(), driver, nil, writer,
		optimization.NewCovarianceEstimator(log), log)

	outcome, err := service.Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, outcome.Result.Periods, 29-12)
	assert.Equal(t, filepath.Join(reportsDir, outcome.Result.ID), outcome.ReportDir)
	assert.FileExists(t, filepath.Join(outcome.ReportDir, reporting.SummaryFile))
	assert.FileExists(t, filepath.Join(outcome.ReportDir, reporting.FrontierFile))
	assert.FileExists(t, filepath.Join(outcome.ReportDir, reporting.PricesFile))
}

func TestBacktestService_Errors(t *testing.T) {
	cov := optimization.NewCovarianceEstimator(silentLogger())

	t.Run("price failure", func(t *testing.T) {
		service := NewBacktestService(testStrategy(), &stubPrices{err: errors.New("offline")}, newScores(), &recordingRunner{}, nil, nil, cov, silentLogger())
		_, err := service.Execute(context.Background())
		assert.ErrorContains(t, err, "failed to load prices")
	})

	t.Run("unknown ticker", func(t *testing.T) {
		strategy := testStrategy()
		strategy.Tickers = []string{"AAA", "ZZZ"}
		service := NewBacktestService(strategy, &stubPrices{frame: testFrame(20)}, newScores(), &recordingRunner{}, nil, nil, cov, silentLogger())
		_, err := service.Execute(context.Background())
		assert.ErrorIs(t, err, historical.ErrNoPrices)
	})

	t.Run("unknown normalization", func(t *testing.T) {
		strategy := testStrategy()
		strategy.ESG.Normalization = "rank"
		service := NewBacktestService(strategy, &stubPrices{frame: testFrame(20)}, newScores(), &recordingRunner{}, nil, nil, cov, silentLogger())
		_, err := service.Execute(context.Background())
		assert.ErrorIs(t, err, esg.ErrUnknownMethod)
	})

	t.Run("runner failure", func(t *testing.T) {
		runner := &recordingRunner{err: backtest.ErrWindowTooShort}
		store := &recordingStore{}
		service := NewBacktestService(testStrategy(), &stubPrices{frame: testFrame(20)}, newScores(), runner, store, nil, cov, silentLogger())
		_, err := service.Execute(context.Background())
		assert.ErrorIs(t, err, backtest.ErrWindowTooShort)
		assert.Empty(t, store.saved)
	})
}
