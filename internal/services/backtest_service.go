// Package services holds orchestration that spans several modules.
package services

import (
	"context"
	"fmt"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/domain"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/modules/esg"
	"github.com/aristath/esgfolio/internal/modules/historical"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/internal/modules/reporting"
	"github.com/aristath/esgfolio/internal/utils"
	"github.com/rs/zerolog"
)

// frontierPortfolios is the number of random portfolios in the frontier report.
const frontierPortfolios = 5000

// PriceLoader supplies close prices, typically through the disk cache.
type PriceLoader interface {
	LoadOrFetch(ctx context.Context, tickers []string) (*historical.PriceFrame, error)
}

// ScoreCollector supplies raw ESG risk scores.
type ScoreCollector interface {
	Collect(ctx context.Context, tickers []string) map[string]*float64
}

// Runner runs a backtest over prepared inputs.
type Runner interface {
	Run(ctx context.Context, returns *domain.ReturnMatrix, esg domain.ESGVector, p backtest.Params) (*backtest.Result, error)
}

// RunSaver persists completed runs.
type RunSaver interface {
	Save(ctx context.Context, res *backtest.Result) error
}

// ReportWriter writes report files for a run.
type ReportWriter interface {
	Write(res *backtest.Result) (string, error)
	WriteFrontier(runDir string, points []reporting.FrontierPoint) error
	WritePrices(runDir string, frame *historical.PriceFrame) error
}

// BacktestOutcome is what one pipeline execution produced.
type BacktestOutcome struct {
	Result    *backtest.Result
	ReportDir string
}

// BacktestService runs the full pipeline: prices, returns, ESG scores,
// backtest, storage and reports.
type BacktestService struct {
	strategy   *config.Strategy
	prices     PriceLoader
	scores     ScoreCollector
	runner     Runner
	store      RunSaver
	reports    ReportWriter
	covariance *optimization.CovarianceEstimator
	log        zerolog.Logger
}

// NewBacktestService creates a new backtest service. store and reports may
// be nil to skip persistence or report files.
func NewBacktestService(
	strategy *config.Strategy,
	prices PriceLoader,
	scores ScoreCollector,
	runner Runner,
	store RunSaver,
	reports ReportWriter,
	covariance *optimization.CovarianceEstimator,
	log zerolog.Logger,
) *BacktestService {
	return &BacktestService{
		strategy:   strategy,
		prices:     prices,
		scores:     scores,
		runner:     runner,
		store:      store,
		reports:    reports,
		covariance: covariance,
		log:        log.With().Str("service", "backtest").Logger(),
	}
}

// ParamsFromStrategy maps strategy settings onto driver parameters.
func ParamsFromStrategy(s *config.Strategy) backtest.Params {
	return backtest.Params{
		TrainWindow: s.Backtest.TrainWindowWeeks,
		CovMethod:   s.Risk.CovMethod,
		EWMALambda:  s.Risk.EWMALambda,
		Alpha:       s.Opt.AlphaRiskAversion,
		Beta:        s.Opt.BetaESGPref,
		WeightMax:   s.Opt.WeightMax,
		Workers:     s.Backtest.Workers,
	}
}

// Execute runs the pipeline once.
func (s *BacktestService) Execute(ctx context.Context) (*BacktestOutcome, error) {
	defer utils.OperationTimer("backtest_pipeline", s.log)()

	tickers := s.strategy.Tickers

	frame, err := s.prices.LoadOrFetch(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	frame, err = frame.Select(tickers)
	if err != nil {
		return nil, err
	}

	returns, err := historical.ToLogReturns(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to compute returns: %w", err)
	}

	raw := s.scores.Collect(ctx, returns.Assets)
	scores, err := esg.Normalize(raw, returns.Assets, s.strategy.ESG.Normalization)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int("assets", returns.NumAssets()).
		Int("periods", returns.Len()).
		Msg("Inputs prepared")

	res, err := s.runner.Run(ctx, returns, scores, ParamsFromStrategy(s.strategy))
	if err != nil {
		return nil, fmt.Errorf("backtest failed: %w", err)
	}
	outcome := &BacktestOutcome{Result: res}

	if s.store != nil {
		if err := s.store.Save(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to store run: %w", err)
		}
	}

	if s.reports != nil {
		dir, err := s.reports.Write(res)
		if err != nil {
			return nil, fmt.Errorf("failed to write reports: %w", err)
		}
		outcome.ReportDir = dir

		if err := s.reports.WritePrices(dir, frame); err != nil {
			return nil, err
		}

		points, err := reporting.SimulateFrontier(s.covariance, returns, scores.Scores, frontierPortfolios, 1)
		if err != nil {
			s.log.Warn().Err(err).Msg("Skipping frontier report")
		} else if err := s.reports.WriteFrontier(dir, points); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}
