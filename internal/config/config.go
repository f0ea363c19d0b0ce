// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/esgfolio/internal/utils"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds process configuration read from the environment.
type Config struct {
	DataDir      string // Base directory for databases, caches and reports (always absolute)
	StrategyPath string // Path to the strategy YAML file
	LogLevel     string
	Port         int
	DevMode      bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("ESGFOLIO_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		StrategyPath: getEnv("ESGFOLIO_CONFIG", "config.yaml"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
	}

	return cfg, nil
}

// DatabasePath is the SQLite file holding stored backtest runs.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "backtests.db")
}

// CacheDir holds downloaded price caches.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// ResolvePath returns p unchanged when absolute, otherwise joined onto DataDir.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Strategy mirrors the strategy YAML file.
type Strategy struct {
	Tickers  []string       `yaml:"tickers"`
	Price    PriceConfig    `yaml:"price"`
	ESG      ESGConfig      `yaml:"esg"`
	ARIMA    ARIMAConfig    `yaml:"arima"`
	Risk     RiskConfig     `yaml:"risk"`
	Opt      OptConfig      `yaml:"opt"`
	Backtest BacktestConfig `yaml:"backtest"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Reports  ReportsConfig  `yaml:"reports"`
}

// PriceConfig controls price acquisition.
type PriceConfig struct {
	LookbackYears int    `yaml:"lookback_years"`
	Interval      string `yaml:"interval"`
	AutoAdjust    bool   `yaml:"auto_adjust"`
	PricesCSV     string `yaml:"prices_csv"` // when set, prices are read from this file instead of Yahoo
}

// ESGConfig controls ESG score collection and normalization.
type ESGConfig struct {
	SourcePriority []string            `yaml:"source_priority"`
	Normalization  string              `yaml:"normalization"`
	ScoresCSV      string              `yaml:"scores_csv"`
	Scores         map[string]*float64 `yaml:"scores"`
}

// ARIMAConfig bounds the forecaster's model search.
type ARIMAConfig struct {
	MaxP          int  `yaml:"max_p"`
	MaxD          int  `yaml:"max_d"`
	MaxQ          int  `yaml:"max_q"`
	UseAutoSearch bool `yaml:"use_auto_search"`
}

// RiskConfig selects the covariance estimator.
type RiskConfig struct {
	CovMethod  string  `yaml:"cov_method"`
	EWMALambda float64 `yaml:"ewma_lambda"`
}

// OptConfig holds allocator parameters.
type OptConfig struct {
	AlphaRiskAversion float64 `yaml:"alpha_risk_aversion"`
	BetaESGPref       float64 `yaml:"beta_esg_pref"`
	WeightMax         float64 `yaml:"weight_max"`
}

// BacktestConfig holds rolling-window parameters.
type BacktestConfig struct {
	TrainWindowWeeks int `yaml:"train_window_weeks"`
	Workers          int `yaml:"workers"`
}

// ScheduleConfig holds the cron expression for scheduled re-runs (seconds field included).
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// ReportsConfig controls where report files are written.
type ReportsConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultStrategy returns the strategy used when fields are omitted from the file.
func DefaultStrategy() Strategy {
	return Strategy{
		Price: PriceConfig{
			LookbackYears: 10,
			Interval:      "1wk",
			AutoAdjust:    true,
		},
		ESG: ESGConfig{
			SourcePriority: []string{"inline", "csv"},
			Normalization:  "zscore_to_01",
		},
		ARIMA: ARIMAConfig{
			MaxP:          3,
			MaxD:          1,
			MaxQ:          3,
			UseAutoSearch: true,
		},
		Risk: RiskConfig{
			CovMethod:  "ewma",
			EWMALambda: 0.94,
		},
		Opt: OptConfig{
			AlphaRiskAversion: 5.0,
			BetaESGPref:       0.01,
			WeightMax:         0.3,
		},
		Backtest: BacktestConfig{
			TrainWindowWeeks: 104,
			Workers:          1,
		},
		Schedule: ScheduleConfig{
			Cron: "0 0 6 * * MON",
		},
		Reports: ReportsConfig{
			Dir: "outputs",
		},
	}
}

// LoadStrategy reads and validates the strategy YAML file at path.
// Fields missing from the file keep their DefaultStrategy values.
func LoadStrategy(path string) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}
	return ParseStrategy(data)
}

// ParseStrategy decodes and validates strategy YAML.
func ParseStrategy(data []byte) (*Strategy, error) {
	s := DefaultStrategy()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse strategy: %w", err)
	}

	applyEnvOverrides(&s)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// applyEnvOverrides lets deployments tune the optimizer without editing the file.
func applyEnvOverrides(s *Strategy) {
	if tickers := utils.ParseCSV(os.Getenv("ESGFOLIO_TICKERS")); tickers != nil {
		s.Tickers = tickers
	}
	if v := os.Getenv("ESGFOLIO_COV_METHOD"); v != "" {
		s.Risk.CovMethod = v
	}
	if v := os.Getenv("ESGFOLIO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Backtest.Workers = n
		}
	}
	if v := os.Getenv("ESGFOLIO_PRICES_CSV"); v != "" {
		s.Price.PricesCSV = v
	}
}

// Validate checks the strategy for configuration errors.
func (s *Strategy) Validate() error {
	if len(s.Tickers) == 0 {
		return fmt.Errorf("%w: no tickers configured", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(s.Tickers))
	for _, t := range s.Tickers {
		if t == "" {
			return fmt.Errorf("%w: empty ticker", ErrInvalidConfig)
		}
		if seen[t] {
			return fmt.Errorf("%w: duplicate ticker %s", ErrInvalidConfig, t)
		}
		seen[t] = true
	}

	if s.Backtest.TrainWindowWeeks < 1 {
		return fmt.Errorf("%w: train_window_weeks must be >= 1, got %d", ErrInvalidConfig, s.Backtest.TrainWindowWeeks)
	}
	if s.Backtest.Workers < 1 {
		s.Backtest.Workers = 1
	}

	switch s.Risk.CovMethod {
	case "sample", "ledoit_wolf":
	case "ewma":
		if !(s.Risk.EWMALambda > 0 && s.Risk.EWMALambda < 1) {
			return fmt.Errorf("%w: ewma_lambda must lie in (0,1), got %v", ErrInvalidConfig, s.Risk.EWMALambda)
		}
	default:
		return fmt.Errorf("%w: unknown cov_method %q", ErrInvalidConfig, s.Risk.CovMethod)
	}

	if s.Opt.AlphaRiskAversion < 0 {
		return fmt.Errorf("%w: alpha_risk_aversion must be >= 0, got %v", ErrInvalidConfig, s.Opt.AlphaRiskAversion)
	}
	if !(s.Opt.WeightMax > 0 && s.Opt.WeightMax <= 1) {
		return fmt.Errorf("%w: weight_max must lie in (0,1], got %v", ErrInvalidConfig, s.Opt.WeightMax)
	}

	if s.ARIMA.MaxP < 0 || s.ARIMA.MaxD < 0 || s.ARIMA.MaxQ < 0 {
		return fmt.Errorf("%w: ARIMA bounds must be non-negative", ErrInvalidConfig)
	}

	if s.Price.LookbackYears < 1 && s.Price.PricesCSV == "" {
		return fmt.Errorf("%w: lookback_years must be >= 1", ErrInvalidConfig)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
