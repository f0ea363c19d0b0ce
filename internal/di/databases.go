// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/esgfolio/internal/config"
	"github.com/aristath/esgfolio/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens backtests.db and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	backtestsDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "backtests",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backtests database: %w", err)
	}

	if err := backtestsDB.Migrate(); err != nil {
		backtestsDB.Close()
		return nil, fmt.Errorf("failed to migrate backtests database: %w", err)
	}
	container.BacktestsDB = backtestsDB

	log.Info().Str("path", backtestsDB.Path()).Msg("Database initialized")
	return container, nil
}
