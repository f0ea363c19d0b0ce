package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDatabases(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{DataDir: tmpDir}

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container.BacktestsDB)
	defer container.Close()

	assert.FileExists(t, filepath.Join(tmpDir, "backtests.db"))
	assert.NoError(t, container.BacktestsDB.HealthCheck(context.Background()))

	var tables int
	err = container.BacktestsDB.Conn().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('backtest_runs', 'backtest_periods')",
	).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)
}
