package backtest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/esgfolio/internal/database"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/aristath/esgfolio/internal/utils"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository stores backtest runs in SQLite.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a repository over a migrated backtests database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "backtests").Logger(),
	}
}

// Save stores a run and all its periods in one transaction.
func (r *Repository) Save(ctx context.Context, res *Result) error {
	done := utils.MeasureDBQuery("save_backtest", r.log)

	assets, err := json.Marshal(res.Assets)
	if err != nil {
		return fmt.Errorf("failed to encode assets: %w", err)
	}
	params, err := json.Marshal(res.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	diagnostics, err := json.Marshal(res.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_runs (id, created_at, assets, params, diagnostics, summary, period_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, res.ID, res.CreatedAt.Unix(), string(assets), string(params), string(diagnostics), string(summary), len(res.Periods))
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO backtest_periods
				(run_id, period_index, date, realized_return, cumulative, weights, allocation_status, forecasts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare period insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range res.Periods {
			weights, err := msgpack.Marshal(p.Weights)
			if err != nil {
				return fmt.Errorf("failed to encode weights for period %d: %w", p.Index, err)
			}
			forecasts, err := msgpack.Marshal(p.Forecasts)
			if err != nil {
				return fmt.Errorf("failed to encode forecasts for period %d: %w", p.Index, err)
			}
			if _, err := stmt.ExecContext(ctx, res.ID, p.Index, p.Date.Unix(), p.Return, p.Cumulative, weights, string(p.AllocationStatus), forecasts); err != nil {
				return fmt.Errorf("failed to insert period %d: %w", p.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	done(int64(len(res.Periods)))
	r.log.Info().Str("run_id", res.ID).Int("periods", len(res.Periods)).Msg("Saved backtest run")
	return nil
}

// Get loads a run with its periods.
func (r *Repository) Get(ctx context.Context, id string) (*Result, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, assets, params, diagnostics, summary, period_count
		FROM backtest_runs WHERE id = ?
	`, id)
	info, err := scanRunInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT period_index, date, realized_return, cumulative, weights, allocation_status, forecasts
		FROM backtest_periods WHERE run_id = ?
		ORDER BY period_index ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	periods := make([]Period, 0, info.PeriodCount)
	for rows.Next() {
		var (
			p          Period
			date       int64
			status     string
			weightsRaw []byte
			fcRaw      []byte
		)
		if err := rows.Scan(&p.Index, &date, &p.Return, &p.Cumulative, &weightsRaw, &status, &fcRaw); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		if err := msgpack.Unmarshal(weightsRaw, &p.Weights); err != nil {
			return nil, fmt.Errorf("failed to decode weights for period %d: %w", p.Index, err)
		}
		var forecasts []forecasting.Forecast
		if err := msgpack.Unmarshal(fcRaw, &forecasts); err != nil {
			return nil, fmt.Errorf("failed to decode forecasts for period %d: %w", p.Index, err)
		}
		p.Forecasts = forecasts
		p.Date = time.Unix(date, 0).UTC()
		p.AllocationStatus = optimization.Status(status)
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating periods: %w", err)
	}

	return &Result{
		ID:          info.ID,
		CreatedAt:   info.CreatedAt,
		Assets:      info.Assets,
		Params:      info.Params,
		Periods:     periods,
		Diagnostics: info.Diagnostics,
		Summary:     info.Summary,
	}, nil
}

// List returns the most recent runs first, at most limit of them.
func (r *Repository) List(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, assets, params, diagnostics, summary, period_count
		FROM backtest_runs
		ORDER BY created_at DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Delete removes a run and its periods.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	r.log.Info().Str("run_id", id).Msg("Deleted backtest run")
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRunInfo(s scanner) (*RunInfo, error) {
	var (
		info                                 RunInfo
		createdAt                            int64
		assets, params, diagnostics, summary string
	)
	if err := s.Scan(&info.ID, &createdAt, &assets, &params, &diagnostics, &summary, &info.PeriodCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	info.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(assets), &info.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode assets: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &info.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(diagnostics), &info.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &info.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &info, nil
}
