package historical

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/esgfolio/internal/utils"
	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
)

// Provider supplies close prices for a set of tickers.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, tickers []string) (*PriceFrame, error)
}

// YahooOptions controls Yahoo Finance downloads.
type YahooOptions struct {
	LookbackYears int
	Interval      string
	AutoAdjust    bool
}

// historyFunc fetches bars for one symbol.
type historyFunc func(symbol string, params models.HistoryParams) ([]models.Bar, error)

// YahooProvider downloads close prices from Yahoo Finance.
type YahooProvider struct {
	opts    YahooOptions
	history historyFunc
	now     func() time.Time
	log     zerolog.Logger
}

// NewYahooProvider creates a provider backed by go-yfinance.
func NewYahooProvider(opts YahooOptions, log zerolog.Logger) *YahooProvider {
	if opts.Interval == "" {
		opts.Interval = "1wk"
	}
	return &YahooProvider{
		opts:    opts,
		history: fetchHistory,
		now:     time.Now,
		log:     log.With().Str("component", "yahoo_provider").Logger(),
	}
}

func fetchHistory(symbol string, params models.HistoryParams) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	return t.History(params)
}

// Name implements Provider.
func (p *YahooProvider) Name() string { return "yahoo" }

// Fetch downloads every ticker sequentially and trims the result to the
// configured lookback.
func (p *YahooProvider) Fetch(ctx context.Context, tickers []string) (*PriceFrame, error) {
	timer := utils.NewTimer("yahoo_fetch", p.log)
	defer timer.Stop()

	params := models.HistoryParams{
		Period:     lookbackPeriod(p.opts.LookbackYears),
		Interval:   p.opts.Interval,
		AutoAdjust: p.opts.AutoAdjust,
	}
	cutoff := p.now().AddDate(-p.opts.LookbackYears, 0, 0)

	series := make(map[string][]PricePoint, len(tickers))
	total := 0
	for _, symbol := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars, err := p.history(symbol, params)
		if err != nil {
			return nil, fmt.Errorf("failed to get historical prices for %s: %w", symbol, err)
		}

		points := make([]PricePoint, 0, len(bars))
		for _, bar := range bars {
			if bar.Date.Before(cutoff) || bar.Close <= 0 {
				continue
			}
			points = append(points, PricePoint{Date: bar.Date, Close: bar.Close})
		}
		series[symbol] = points
		total += len(points)

		p.log.Debug().Str("symbol", symbol).Int("bars", len(points)).Msg("Fetched price history")
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no bars for %s", ErrNoPrices, strings.Join(tickers, ","))
	}
	return NewPriceFrame(tickers, series), nil
}

// lookbackPeriod picks the smallest Yahoo period covering years.
func lookbackPeriod(years int) string {
	switch {
	case years <= 1:
		return "1y"
	case years <= 2:
		return "2y"
	case years <= 5:
		return "5y"
	case years <= 10:
		return "10y"
	default:
		return "max"
	}
}

// CSVProvider reads close prices from a file with a date column followed by
// one column per ticker. Blank cells are missing closes.
type CSVProvider struct {
	path string
}

// NewCSVProvider creates a provider reading path.
func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{path: path}
}

// Name implements Provider.
func (p *CSVProvider) Name() string { return "csv" }

// Fetch implements Provider.
func (p *CSVProvider) Fetch(ctx context.Context, tickers []string) (*PriceFrame, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prices file: %w", err)
	}
	defer f.Close()

	frame, err := ReadPricesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", p.path, err)
	}
	return frame.Select(tickers)
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00"}

// ReadPricesCSV parses a "date,TICKER1,TICKER2,..." price table.
func ReadPricesCSV(r io.Reader) (*PriceFrame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: header needs a date column and at least one ticker", ErrNoPrices)
	}

	tickers := make([]string, len(header)-1)
	for i, h := range header[1:] {
		tickers[i] = utils.NormalizeTicker(h)
	}

	series := make(map[string][]PricePoint, len(tickers))
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		date, err := parseDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for j, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid close %q for %s", line, cell, tickers[j])
			}
			if math.IsNaN(v) {
				continue
			}
			series[tickers[j]] = append(series[tickers[j]], PricePoint{Date: date, Close: v})
		}
	}

	frame := NewPriceFrame(tickers, series)
	if frame.Len() == 0 {
		return nil, ErrNoPrices
	}
	return frame, nil
}

// WritePricesCSV writes f in the layout ReadPricesCSV accepts.
func WritePricesCSV(w io.Writer, f *PriceFrame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"date"}, f.Tickers...)); err != nil {
		return err
	}
	for t, d := range f.Dates {
		record := make([]string, len(f.Tickers)+1)
		record[0] = d.Format("2006-01-02")
		for j, v := range f.Closes[t] {
			if !math.IsNaN(v) {
				record[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
