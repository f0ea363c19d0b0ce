// Package charts renders backtest results as chart data and PNG images.
package charts

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/rs/zerolog"
	charts "github.com/vicanso/go-charts/v2"
)

// ErrNoData is returned when a result has no periods to draw.
var ErrNoData = errors.New("no periods to chart")

const (
	defaultWidth  = 1000
	defaultHeight = 600
)

// ChartDataPoint represents a single point on a chart
type ChartDataPoint struct {
	Time  string  `json:"time"`  // YYYY-MM-DD format
	Value float64 `json:"value"` // Cumulative growth of 1
}

// Service provides chart operations for backtest results
type Service struct {
	width  int
	height int
	log    zerolog.Logger
}

// NewService creates a new charts service
func NewService(log zerolog.Logger) *Service {
	return &Service{
		width:  defaultWidth,
		height: defaultHeight,
		log:    log.With().Str("service", "charts").Logger(),
	}
}

// CumulativeSeries returns the cumulative return curve, optionally limited to
// a trailing range ("1Y", "3Y", "5Y", "10Y" or "all") ending at the last period.
func (s *Service) CumulativeSeries(res *backtest.Result, dateRange string) []ChartDataPoint {
	if len(res.Periods) == 0 {
		return []ChartDataPoint{}
	}
	start := rangeStart(res.Periods[len(res.Periods)-1].Date, dateRange)

	points := make([]ChartDataPoint, 0, len(res.Periods))
	for _, p := range res.Periods {
		if !start.IsZero() && p.Date.Before(start) {
			continue
		}
		points = append(points, ChartDataPoint{
			Time:  p.Date.Format("2006-01-02"),
			Value: p.Cumulative,
		})
	}
	return points
}

// CumulativeReturnsPNG draws the cumulative return curve.
func (s *Service) CumulativeReturnsPNG(res *backtest.Result) ([]byte, error) {
	if len(res.Periods) == 0 {
		return nil, ErrNoData
	}

	values := res.Cumulative()
	yMin, yMax := paddedRange(values)
	title := fmt.Sprintf("Cumulative Portfolio Returns\nTotal: %.2f%% | Sharpe: %.2f | MaxDD: %.2f%%",
		res.Summary.TotalReturn*100, res.Summary.Sharpe, res.Summary.MaxDrawdown*100)

	p, err := charts.LineRender(
		[][]float64{values},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        dateLabels(res),
			SplitNumber: splitNumber(len(values)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.WidthOptionFunc(s.width),
		charts.HeightOptionFunc(s.height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	s.log.Debug().Int("points", len(values)).Int("bytes", len(buf)).Msg("Rendered cumulative returns chart")
	return buf, nil
}

// WeightsPNG draws one weight line per asset over time.
func (s *Service) WeightsPNG(res *backtest.Result) ([]byte, error) {
	if len(res.Periods) == 0 {
		return nil, ErrNoData
	}

	values := make([][]float64, len(res.Assets))
	for j := range res.Assets {
		values[j] = make([]float64, len(res.Periods))
		for t, p := range res.Periods {
			values[j][t] = p.Weights[j]
		}
	}

	seriesList := charts.NewSeriesListDataFromValues(values, charts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = res.Assets[i]
	}

	yMin, yMax := 0.0, math.Min(1, res.Params.WeightMax+0.05)
	if res.Params.WeightMax <= 0 {
		yMax = 1
	}

	p, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc("Portfolio Weights"),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        dateLabels(res),
			SplitNumber: splitNumber(len(res.Periods)),
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: res.Assets}),
		charts.WidthOptionFunc(s.width),
		charts.HeightOptionFunc(s.height),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render weights chart: %w", err)
	}
	return p.Bytes()
}

func dateLabels(res *backtest.Result) []string {
	labels := make([]string, len(res.Periods))
	for i, p := range res.Periods {
		labels[i] = p.Date.Format("2006-01-02")
	}
	return labels
}

func splitNumber(points int) int {
	if points <= 30 {
		return max(3, points/3)
	}
	return 6
}

func paddedRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = 0.01
	}
	return lo - pad, hi + pad
}

// rangeStart converts a range string to the first date included, relative
// to end. A zero time means no filter.
func rangeStart(end time.Time, rangeStr string) time.Time {
	switch rangeStr {
	case "1Y":
		return end.AddDate(-1, 0, 0)
	case "3Y":
		return end.AddDate(-3, 0, 0)
	case "5Y":
		return end.AddDate(-5, 0, 0)
	case "10Y":
		return end.AddDate(-10, 0, 0)
	default:
		return time.Time{}
	}
}
