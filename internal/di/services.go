package di

import (
	"fmt"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	backtesthandlers "github.com/aristath/esgfolio/internal/modules/backtest/handlers"
	"github.com/aristath/esgfolio/internal/modules/charts"
	"github.com/aristath/esgfolio/internal/modules/esg"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/historical"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/internal/modules/reporting"
	"github.com/aristath/esgfolio/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices creates every service in dependency order
func InitializeServices(container *Container, cfg *config.Config, strategy *config.Strategy, log zerolog.Logger) error {
	container.Strategy = strategy

	// Data acquisition
	if strategy.Price.PricesCSV != "" {
		container.PriceProvider = historical.NewCSVProvider(strategy.Price.PricesCSV)
	} else {
		container.PriceProvider = historical.NewYahooProvider(historical.YahooOptions{
			LookbackYears: strategy.Price.LookbackYears,
			Interval:      strategy.Price.Interval,
			AutoAdjust:    strategy.Price.AutoAdjust,
		}, log)
	}
	container.PriceCache = historical.NewCache(cfg.CacheDir(), container.PriceProvider, log)

	sources, err := esg.SourcesFromPriority(strategy.ESG.SourcePriority, strategy.ESG.Scores, strategy.ESG.ScoresCSV)
	if err != nil {
		return fmt.Errorf("failed to configure ESG sources: %w", err)
	}
	container.ESGCollector = esg.NewCollector(sources, log)

	// Core
	var searcher forecasting.ModelSearcher
	if strategy.ARIMA.UseAutoSearch {
		searcher = forecasting.NewAutoSearcher(forecasting.SearchBounds{
			MaxP: strategy.ARIMA.MaxP,
			MaxD: strategy.ARIMA.MaxD,
			MaxQ: strategy.ARIMA.MaxQ,
		})
	}
	container.Forecaster = forecasting.NewForecaster(forecasting.Options{
		UseAutoSearch: strategy.ARIMA.UseAutoSearch,
		Bounds: forecasting.SearchBounds{
			MaxP: strategy.ARIMA.MaxP,
			MaxD: strategy.ARIMA.MaxD,
			MaxQ: strategy.ARIMA.MaxQ,
		},
	}, searcher, log)
	container.CovarianceEstimator = optimization.NewCovarianceEstimator(log)
	container.Allocator = optimization.NewAllocator(log)
	container.Driver = backtest.NewDriver(container.Forecaster, container.CovarianceEstimator, container.Allocator, log)

	// Outputs
	container.BacktestRepo = backtest.NewRepository(container.BacktestsDB.Conn(), log)
	container.ChartService = charts.NewService(log)
	container.ReportWriter = reporting.NewWriter(reportsDir(cfg, strategy), container.ChartService, log)
	container.BacktestService = services.NewBacktestService(
		strategy,
		container.PriceCache,
		container.ESGCollector,
		container.Driver,
		container.BacktestRepo,
		container.ReportWriter,
		container.CovarianceEstimator,
		log,
	)
	container.BacktestHandler = backtesthandlers.NewHandler(container.BacktestRepo, container.ChartService, log)

	log.Info().Msg("Services initialized")
	return nil
}

// reportsDir resolves a relative reports directory against the data directory.
func reportsDir(cfg *config.Config, strategy *config.Strategy) string {
	return cfg.ResolvePath(strategy.Reports.Dir)
}
