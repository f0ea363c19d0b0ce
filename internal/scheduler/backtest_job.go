package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/esgfolio/internal/services"
	"github.com/rs/zerolog"
)

// BacktestExecutor runs the backtest pipeline once.
type BacktestExecutor interface {
	Execute(ctx context.Context) (*services.BacktestOutcome, error)
}

// CacheInvalidator drops cached prices so a run sees fresh data.
type CacheInvalidator interface {
	Invalidate(tickers []string) error
}

// BacktestJob re-runs the backtest on fresh prices.
type BacktestJob struct {
	executor BacktestExecutor
	cache    CacheInvalidator
	tickers  []string
	timeout  time.Duration
	log      zerolog.Logger
}

// BacktestJobConfig holds dependencies for BacktestJob
type BacktestJobConfig struct {
	Executor BacktestExecutor
	Cache    CacheInvalidator // optional
	Tickers  []string
	Timeout  time.Duration // zero means no timeout
	Log      zerolog.Logger
}

// NewBacktestJob creates a new backtest job
func NewBacktestJob(cfg BacktestJobConfig) *BacktestJob {
	return &BacktestJob{
		executor: cfg.Executor,
		cache:    cfg.Cache,
		tickers:  cfg.Tickers,
		timeout:  cfg.Timeout,
		log:      cfg.Log.With().Str("job", "backtest").Logger(),
	}
}

// Name returns the job name
func (j *BacktestJob) Name() string {
	return "backtest"
}

// Run executes the backtest job
func (j *BacktestJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	if j.cache != nil {
		if err := j.cache.Invalidate(j.tickers); err != nil {
			j.log.Warn().Err(err).Msg("Failed to invalidate price cache, using cached prices")
		}
	}

	outcome, err := j.executor.Execute(ctx)
	if err != nil {
		return fmt.Errorf("backtest job failed: %w", err)
	}

	res := outcome.Result
	j.log.Info().
		Str("run_id", res.ID).
		Int("periods", len(res.Periods)).
		Float64("total_return", res.Summary.TotalReturn).
		Float64("sharpe", res.Summary.Sharpe).
		Str("reports", outcome.ReportDir).
		Msg("Scheduled backtest completed")
	return nil
}
