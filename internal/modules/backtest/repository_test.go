package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/esgfolio/internal/database"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "backtests.db"),
		Name: "backtests",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewRepository(db.Conn(), silentLogger())
}

func sampleResult(id string, created time.Time) *Result {
	order := forecasting.FixedOrder
	periods := []Period{
		{
			Index:            0,
			Date:             time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
			Weights:          []float64{0.6, 0.4},
			Return:           0.01,
			AllocationStatus: optimization.StatusOptimal,
			Forecasts: []forecasting.Forecast{
				{Mean: 0.002, Variance: 0.0004, Method: forecasting.MethodFixed, Order: &order},
				{Mean: 0.001, Variance: 0.0002, Method: forecasting.MethodFallback, Reason: "too few observations"},
			},
		},
		{
			Index:            1,
			Date:             time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Weights:          []float64{0.5, 0.5},
			Return:           -0.02,
			AllocationStatus: optimization.StatusInfeasible,
			Forecasts: []forecasting.Forecast{
				{Mean: 0.003, Variance: 0.0005, Method: forecasting.MethodFixed, Order: &order},
				{Mean: 0.0, Variance: 0.0, Method: forecasting.MethodFallback, Reason: "no data"},
			},
		},
	}
	compound(periods)

	res := &Result{
		ID:        id,
		CreatedAt: created,
		Assets:    []string{"AAA", "BBB"},
		Params:    testParams(52),
		Periods:   periods,
		Diagnostics: Diagnostics{
			Periods:             2,
			FixedForecasts:      2,
			ForecastFallbacks:   2,
			AllocationFallbacks: 1,
			Duration:            1500 * time.Millisecond,
		},
	}
	res.Summary = Summarize(res)
	return res
}

func TestRepository_SaveAndGet(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	created := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	want := sampleResult("run-1", created)

	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.Assets, got.Assets)
	assert.Equal(t, want.Params, got.Params)
	assert.Equal(t, want.Diagnostics, got.Diagnostics)
	assert.Equal(t, want.Summary, got.Summary)
	require.Len(t, got.Periods, 2)
	for i := range want.Periods {
		assert.Equal(t, want.Periods[i].Index, got.Periods[i].Index)
		assert.True(t, want.Periods[i].Date.Equal(got.Periods[i].Date))
		assert.Equal(t, want.Periods[i].Weights, got.Periods[i].Weights)
		assert.Equal(t, want.Periods[i].Return, got.Periods[i].Return)
		assert.Equal(t, want.Periods[i].Cumulative, got.Periods[i].Cumulative)
		assert.Equal(t, want.Periods[i].AllocationStatus, got.Periods[i].AllocationStatus)
		assert.Equal(t, want.Periods[i].Forecasts, got.Periods[i].Forecasts)
	}
}

func TestRepository_GetNotFound(t *testing.T) {
	repo := setupTestRepository(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepository_List(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sampleResult("old", base)))
	require.NoError(t, repo.Save(ctx, sampleResult("new", base.Add(time.Hour))))

	runs, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
	assert.Equal(t, 2, runs[0].PeriodCount)

	runs, err = repo.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestRepository_Delete(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleResult("run-1", time.Now().UTC().Truncate(time.Second))))
	require.NoError(t, repo.Delete(ctx, "run-1"))

	_, err := repo.Get(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "run-1"), ErrRunNotFound)

	var count int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM backtest_periods`).Scan(&count))
	assert.Zero(t, count)
}

func TestRepository_DuplicateID(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()
	res := sampleResult("dup", time.Now().UTC().Truncate(time.Second))

	require.NoError(t, repo.Save(ctx, res))
	assert.Error(t, repo.Save(ctx, res))
}
