/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the entry points for access to services.
 */
package di

import (
	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/database"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	backtesthandlers "github.com/aristath/esgfolio/internal/modules/backtest/handlers"
	"github.com/aristath/esgfolio/internal/modules/charts"
	"github.com/aristath/esgfolio/internal/modules/esg"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/historical"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/internal/modules/reporting"
	"github.com/aristath/esgfolio/internal/scheduler"
	"github.com/aristath/esgfolio/internal/services"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: backtests.db (stored runs)
 * - Data: price provider behind a disk cache, ESG score collector
 * - Core: forecaster, covariance estimator, allocator, backtest driver
 * - Outputs: repository, chart service, report writer, HTTP handlers
 */
type Container struct {
	Strategy *config.Strategy

	// Databases
	BacktestsDB *database.DB

	// Data acquisition
	PriceProvider historical.Provider
	PriceCache    *historical.Cache
	ESGCollector  *esg.Collector

	// Core
	Forecaster          *forecasting.Forecaster
	CovarianceEstimator *optimization.CovarianceEstimator
	Allocator           *optimization.Allocator
	Driver              *backtest.Driver

	// Outputs
	BacktestRepo    *backtest.Repository
	ChartService    *charts.Service
	ReportWriter    *reporting.Writer
	BacktestService *services.BacktestService
	BacktestHandler *backtesthandlers.Handler
}

// Close releases the container's databases.
func (c *Container) Close() error {
	if c.BacktestsDB != nil {
		return c.BacktestsDB.Close()
	}
	return nil
}

// JobInstances holds scheduled job instances
type JobInstances struct {
	Scheduler *scheduler.Scheduler
	Backtest  *scheduler.BacktestJob
}
