// Package main runs a single backtest from the command line, stores it and
// writes its reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/di"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/services"
	"github.com/aristath/esgfolio/internal/utils"
	"github.com/aristath/esgfolio/pkg/logger"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Strategy YAML file (default $ESGFOLIO_CONFIG or config.yaml)")
	tickers := flag.String("tickers", "", "Comma-separated tickers overriding the strategy file")
	workers := flag.Int("workers", 0, "Parallel periods (0 = strategy setting)")
	refresh := flag.Bool("refresh", false, "Ignore cached prices and download again")
	noStore := flag.Bool("no-store", false, "Do not store the run in the database")
	noReports := flag.Bool("no-reports", false, "Do not write report files")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *configPath != "" {
		cfg.StrategyPath = *configPath
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	strategy, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StrategyPath).Msg("Failed to load strategy")
	}
	if list := utils.ParseCSV(*tickers); list != nil {
		strategy.Tickers = list
	}
	if *workers > 0 {
		strategy.Backtest.Workers = *workers
	}
	if err := strategy.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid strategy")
	}
	// The scheduler is not used by one-shot runs.
	strategy.Schedule.Cron = ""

	container, _, err := di.Wire(cfg, strategy, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if *refresh {
		if err := container.PriceCache.Invalidate(strategy.Tickers); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate price cache")
		}
	}

	service := container.BacktestService
	if *noStore || *noReports {
		var store services.RunSaver = container.BacktestRepo
		var reports services.ReportWriter = container.ReportWriter
		if *noStore {
			store = nil
		}
		if *noReports {
			reports = nil
		}
		service = services.NewBacktestService(strategy, container.PriceCache, container.ESGCollector,
			container.Driver, store, reports, container.CovarianceEstimator, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := service.Execute(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Backtest failed")
		container.Close()
		os.Exit(1)
	}

	printSummary(outcome)
}

func printSummary(outcome *services.BacktestOutcome) {
	res := outcome.Result
	s := res.Summary
	d := res.Diagnostics

	fmt.Printf("Run %s\n", res.ID)
	if n := len(res.Periods); n > 0 {
		fmt.Printf("  Periods:            %d (%s to %s)\n", n,
			res.Periods[0].Date.Format("2006-01-02"), res.Periods[n-1].Date.Format("2006-01-02"))
	}
	fmt.Printf("  Total return:       %7.2f%%\n", s.TotalReturn*100)
	fmt.Printf("  Annual return:      %7.2f%%\n", s.AnnualReturn*100)
	fmt.Printf("  Annual volatility:  %7.2f%%\n", s.AnnualVolatility*100)
	fmt.Printf("  Sharpe:             %7.2f\n", s.Sharpe)
	fmt.Printf("  Max drawdown:       %7.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("  Avg holdings:       %7.2f\n", s.AvgHoldings)
	fmt.Printf("  Forecasts:          auto %d, fixed %d, fallback %d\n", d.AutoForecasts, d.FixedForecasts, d.ForecastFallbacks)
	fmt.Printf("  Allocation fallbacks: %d\n", d.AllocationFallbacks)
	if outcome.ReportDir != "" {
		fmt.Printf("  Reports:            %s\n", outcome.ReportDir)
	}
	if len(res.Periods) > 0 {
		printLastWeights(res)
	}
}

func printLastWeights(res *backtest.Result) {
	last := res.Periods[len(res.Periods)-1]
	fmt.Println("  Latest weights:")
	for j, asset := range res.Assets {
		fmt.Printf("    %-8s %6.2f%%\n", asset, last.Weights[j]*100)
	}
}
