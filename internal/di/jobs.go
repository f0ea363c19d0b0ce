package di

import (
	"fmt"
	"time"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

// backtestJobTimeout bounds one scheduled run including the price download.
const backtestJobTimeout = 2 * time.Hour

// RegisterJobs creates the scheduler and registers the backtest job on the
// strategy's cron schedule. An empty schedule registers nothing.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	jobs := &JobInstances{
		Scheduler: scheduler.New(log),
	}

	jobs.Backtest = scheduler.NewBacktestJob(scheduler.BacktestJobConfig{
		Executor: container.BacktestService,
		Cache:    container.PriceCache,
		Tickers:  container.Strategy.Tickers,
		Timeout:  backtestJobTimeout,
		Log:      log,
	})

	schedule := container.Strategy.Schedule.Cron
	if schedule == "" {
		log.Info().Msg("No backtest schedule configured")
		return jobs, nil
	}
	if err := jobs.Scheduler.AddJob(schedule, jobs.Backtest); err != nil {
		return nil, fmt.Errorf("failed to register backtest job: %w", err)
	}

	return jobs, nil
}
