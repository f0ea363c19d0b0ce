// Package main is the entry point for the esgfolio API server.
// It serves stored backtest runs over HTTP and re-runs the backtest on the
// strategy's cron schedule.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/di"
	"github.com/aristath/esgfolio/internal/server"
	"github.com/aristath/esgfolio/pkg/logger"
)

// main loads configuration, wires dependencies, starts the HTTP server and
// scheduler, then waits for SIGINT/SIGTERM and shuts both down gracefully.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting esgfolio server")

	strategy, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StrategyPath).Msg("Failed to load strategy")
	}

	container, jobs, err := di.Wire(cfg, strategy, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:         log,
		DB:          container.BacktestsDB,
		Backtests:   container.BacktestHandler,
		BacktestJob: jobs.Backtest,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	jobs.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Waits for a running backtest to finish
	jobs.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
