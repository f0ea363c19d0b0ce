// Package reporting writes backtest results to report files.
package reporting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/modules/charts"
	"github.com/aristath/esgfolio/internal/modules/historical"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

// Report file names inside a run directory.
const (
	WeightsFile    = "weights.csv"
	ReturnsFile    = "returns.csv"
	PeriodsFile    = "periods.parquet"
	SummaryFile    = "summary.json"
	FrontierFile   = "frontier.csv"
	PricesFile     = "prices.csv"
	CumulativePNG  = "cumulative_returns.png"
	WeightsPNGFile = "weights.png"
)

// PeriodRecord is the parquet schema: one row per period and asset.
type PeriodRecord struct {
	RunID            string  `parquet:"run_id"`
	PeriodIndex      int64   `parquet:"period_index"`
	Timestamp        int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	Asset            string  `parquet:"asset"`
	Weight           float64 `parquet:"weight"`
	ForecastMean     float64 `parquet:"forecast_mean"`
	ForecastVariance float64 `parquet:"forecast_variance"`
	ForecastMethod   string  `parquet:"forecast_method"`
	PortfolioReturn  float64 `parquet:"portfolio_return"`
	Cumulative       float64 `parquet:"cumulative"`
	AllocationStatus string  `parquet:"allocation_status"`
}

// Writer writes report files for a run into <dir>/<run id>/.
type Writer struct {
	dir    string
	charts *charts.Service
	log    zerolog.Logger
}

// NewWriter creates a writer rooted at dir. chartService may be nil to skip PNGs.
func NewWriter(dir string, chartService *charts.Service, log zerolog.Logger) *Writer {
	return &Writer{
		dir:    dir,
		charts: chartService,
		log:    log.With().Str("component", "report_writer").Logger(),
	}
}

// RunDir returns the directory reports for res are written to.
func (w *Writer) RunDir(res *backtest.Result) string {
	return filepath.Join(w.dir, res.ID)
}

// Write writes every report for res and returns the run directory.
func (w *Writer) Write(res *backtest.Result) (string, error) {
	dir := w.RunDir(res)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	steps := []struct {
		name string
		fn   func(string, *backtest.Result) error
	}{
		{WeightsFile, writeWeightsCSV},
		{ReturnsFile, writeReturnsCSV},
		{PeriodsFile, writePeriodsParquet},
		{SummaryFile, writeSummaryJSON},
	}
	for _, step := range steps {
		if err := step.fn(filepath.Join(dir, step.name), res); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", step.name, err)
		}
	}

	if w.charts != nil && len(res.Periods) > 0 {
		if err := w.writeCharts(dir, res); err != nil {
			return "", err
		}
	}

	w.log.Info().Str("run_id", res.ID).Str("dir", dir).Msg("Reports written")
	return dir, nil
}

// WritePrices records the close prices a run was computed from.
func (w *Writer) WritePrices(runDir string, frame *historical.PriceFrame) error {
	f, err := os.Create(filepath.Join(runDir, PricesFile))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", PricesFile, err)
	}
	if err := historical.WritePricesCSV(f, frame); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", PricesFile, err)
	}
	return f.Close()
}

func (w *Writer) writeCharts(dir string, res *backtest.Result) error {
	cumulative, err := w.charts.CumulativeReturnsPNG(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, CumulativePNG), cumulative, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", CumulativePNG, err)
	}

	weights, err := w.charts.WeightsPNG(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, WeightsPNGFile), weights, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", WeightsPNGFile, err)
	}
	return nil
}

func writeWeightsCSV(path string, res *backtest.Result) error {
	rows := [][]string{append([]string{"date"}, res.Assets...)}
	for _, p := range res.Periods {
		row := make([]string, 0, len(p.Weights)+1)
		row = append(row, p.Date.Format("2006-01-02"))
		for _, v := range p.Weights {
			row = append(row, formatFloat(v))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

func writeReturnsCSV(path string, res *backtest.Result) error {
	rows := [][]string{{"date", "portfolio_return", "cumulative"}}
	for _, p := range res.Periods {
		rows = append(rows, []string{p.Date.Format("2006-01-02"), formatFloat(p.Return), formatFloat(p.Cumulative)})
	}
	return writeCSV(path, rows)
}

func writePeriodsParquet(path string, res *backtest.Result) error {
	records := PeriodRecords(res)
	return parquet.WriteFile(path, records)
}

// PeriodRecords flattens res into one record per period and asset.
func PeriodRecords(res *backtest.Result) []PeriodRecord {
	records := make([]PeriodRecord, 0, len(res.Periods)*len(res.Assets))
	for _, p := range res.Periods {
		for j, asset := range res.Assets {
			rec := PeriodRecord{
				RunID:            res.ID,
				PeriodIndex:      int64(p.Index),
				Timestamp:        p.Date.UnixMilli(),
				Asset:            asset,
				Weight:           p.Weights[j],
				PortfolioReturn:  p.Return,
				Cumulative:       p.Cumulative,
				AllocationStatus: string(p.AllocationStatus),
			}
			if j < len(p.Forecasts) {
				rec.ForecastMean = p.Forecasts[j].Mean
				rec.ForecastVariance = p.Forecasts[j].Variance
				rec.ForecastMethod = string(p.Forecasts[j].Method)
			}
			records = append(records, rec)
		}
	}
	return records
}

type summaryReport struct {
	ID          string               `json:"id"`
	CreatedAt   string               `json:"created_at"`
	Assets      []string             `json:"assets"`
	Start       string               `json:"start,omitempty"`
	End         string               `json:"end,omitempty"`
	Params      backtest.Params      `json:"params"`
	Diagnostics backtest.Diagnostics `json:"diagnostics"`
	Summary     backtest.Summary     `json:"summary"`
}

func writeSummaryJSON(path string, res *backtest.Result) error {
	report := summaryReport{
		ID:          res.ID,
		CreatedAt:   res.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Assets:      res.Assets,
		Params:      res.Params,
		Diagnostics: res.Diagnostics,
		Summary:     res.Summary,
	}
	if n := len(res.Periods); n > 0 {
		report.Start = res.Periods[0].Date.Format("2006-01-02")
		report.End = res.Periods[n-1].Date.Format("2006-01-02")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
