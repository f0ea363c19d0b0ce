package reporting

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/esgfolio/internal/domain"
	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/modules/charts"
	"github.com/aristath/esgfolio/internal/modules/forecasting"
	"github.com/aristath/esgfolio/internal/modules/historical"
	"github.com/aristath/esgfolio/internal/modules/optimization"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func testResult() *backtest.Result {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res := &backtest.Result{
		ID:        "report-run",
		CreatedAt: start,
		Assets:    []string{"AAA", "BBB"},
		Params:    backtest.Params{TrainWindow: 3, CovMethod: "sample", Alpha: 5, Beta: 0.01, WeightMax: 0.7, Workers: 1},
	}
	returns := []float64{0.01, -0.02, 0.03}
	cum := 1.0
	for i, r := range returns {
		cum *= 1 + r
		res.Periods = append(res.Periods, backtest.Period{
			Index:            i,
			Date:             start.AddDate(0, 0, 7*i),
			Weights:          []float64{0.7, 0.3},
			Return:           r,
			Cumulative:       cum,
			AllocationStatus: optimization.StatusOptimal,
			Forecasts: []forecasting.Forecast{
				{Mean: 0.002, Variance: 0.0004, Method: forecasting.MethodFixed},
				{Mean: 0.001, Variance: 0.0009, Method: forecasting.MethodFallback, Reason: "too few observations"},
			},
		})
	}
	res.Summary = backtest.Summarize(res)
	return res
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriter_Write(t *testing.T) {
	writer := NewWriter(t.TempDir(), charts.NewService(silentLogger()), silentLogger())
	res := testResult()

	dir, err := writer.Write(res)
	require.NoError(t, err)
	assert.Equal(t, writer.RunDir(res), dir)

	weights := readCSV(t, filepath.Join(dir, WeightsFile))
	require.Len(t, weights, 4)
	assert.Equal(t, []string{"date", "AAA", "BBB"}, weights[0])
	assert.Equal(t, []string{"2024-01-01", "0.7", "0.3"}, weights[1])

	returns := readCSV(t, filepath.Join(dir, ReturnsFile))
	require.Len(t, returns, 4)
	assert.Equal(t, []string{"date", "portfolio_return", "cumulative"}, returns[0])
	assert.Equal(t, "-0.02", returns[2][1])

	var summary map[string]interface{}
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "report-run", summary["id"])
	assert.Equal(t, "2024-01-01", summary["start"])
	assert.Equal(t, "2024-01-15", summary["end"])

	assert.FileExists(t, filepath.Join(dir, CumulativePNG))
	assert.FileExists(t, filepath.Join(dir, WeightsPNGFile))
}

func TestWriter_Parquet(t *testing.T) {
	writer := NewWriter(t.TempDir(), nil, silentLogger())
	res := testResult()

	dir, err := writer.Write(res)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, CumulativePNG))

	records, err := parquet.ReadFile[PeriodRecord](filepath.Join(dir, PeriodsFile))
	require.NoError(t, err)
	require.Len(t, records, 6)

	assert.Equal(t, "report-run", records[0].RunID)
	assert.Equal(t, "AAA", records[0].Asset)
	assert.Equal(t, "BBB", records[1].Asset)
	assert.Equal(t, int64(2), records[5].PeriodIndex)
	assert.Equal(t, res.Periods[2].Date.UnixMilli(), records[5].Timestamp)
	assert.Equal(t, string(forecasting.MethodFallback), records[1].ForecastMethod)
	assert.Equal(t, 0.0009, records[1].ForecastVariance)
	assert.Equal(t, "optimal", records[0].AllocationStatus)
}

func TestPeriodRecords_WithoutForecasts(t *testing.T) {
	res := testResult()
	for i := range res.Periods {
		res.Periods[i].Forecasts = nil
	}

	records := PeriodRecords(res)
	require.Len(t, records, 6)
	assert.Empty(t, records[0].ForecastMethod)
	assert.Equal(t, 0.7, records[0].Weight)
}

func TestWriter_EmptyResult(t *testing.T) {
	writer := NewWriter(t.TempDir(), charts.NewService(silentLogger()), silentLogger())
	res := &backtest.Result{ID: "empty", Assets: []string{"AAA"}}

	dir, err := writer.Write(res)
	require.NoError(t, err)
	assert.Len(t, readCSV(t, filepath.Join(dir, WeightsFile)), 1)
	assert.NoFileExists(t, filepath.Join(dir, CumulativePNG))
}

func TestSimulateFrontier(t *testing.T) {
	dates := make([]time.Time, 30)
	values := make([][]float64, 30)
	for i := range dates {
		dates[i] = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i)
		values[i] = []float64{0.01 * math.Sin(float64(i)), 0.004 * math.Cos(float64(i)*1.3), 0.002}
		if i == 4 {
			values[i][1] = math.NaN()
		}
	}
	returns, err := domain.NewReturnMatrix(dates, []string{"A", "B", "C"}, values)
	require.NoError(t, err)
	esg := []float64{1, 0.5, 0}
	estimator := optimization.NewCovarianceEstimator(silentLogger())

	points, err := SimulateFrontier(estimator, returns, esg, 200, 42)
	require.NoError(t, err)
	require.Len(t, points, 200)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Volatility, 0.0)
		assert.GreaterOrEqual(t, p.ESG, 0.0)
		assert.LessOrEqual(t, p.ESG, 1.0)
		assert.False(t, math.IsNaN(p.Return))
	}

	again, err := SimulateFrontier(estimator, returns, esg, 200, 42)
	require.NoError(t, err)
	assert.Equal(t, points, again)

	_, err = SimulateFrontier(estimator, returns, []float64{1}, 10, 1)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestWriter_WriteFrontier(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir, nil, silentLogger())

	require.NoError(t, writer.WriteFrontier(dir, []FrontierPoint{{Return: 0.08, Volatility: 0.15, ESG: 0.4}}))
	rows := readCSV(t, filepath.Join(dir, FrontierFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"0.15", "0.08", "0.4"}, rows[1])
}

func TestWriter_WritePrices(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(dir, nil, silentLogger())

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	frame := historical.NewPriceFrame([]string{"AAA", "BBB"}, map[string][]historical.PricePoint{
		"AAA": {{Date: day, Close: 10}, {Date: day.AddDate(0, 0, 7), Close: 10.5}},
		"BBB": {{Date: day, Close: 20}},
	})

	require.NoError(t, writer.WritePrices(dir, frame))
	rows := readCSV(t, filepath.Join(dir, PricesFile))
	assert.Equal(t, [][]string{
		{"date", "AAA", "BBB"},
		{"2024-01-05", "10", "20"},
		{"2024-01-12", "10.5", ""},
	}, rows)
}
