package historical

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnjoon/go-yfinance/pkg/models"
)

func TestReadPricesCSV(t *testing.T) {
	input := "Date,aaa,BBB\n2024-01-01,100,50\n2024-01-08,110,\n2024-01-15,121,55\n"

	frame, err := ReadPricesCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, frame.Tickers)
	require.Equal(t, 3, frame.Len())
	assert.Equal(t, 110.0, frame.Closes[1][0])
	assert.True(t, math.IsNaN(frame.Closes[1][1]))
}

func TestReadPricesCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "no tickers", input: "date\n2024-01-01\n"},
		{name: "bad date", input: "date,AAA\nyesterday,1\n"},
		{name: "bad close", input: "date,AAA\n2024-01-01,abc\n"},
		{name: "no rows", input: "date,AAA\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPricesCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestWritePricesCSV_ReadBack(t *testing.T) {
	frame := NewPriceFrame([]string{"AAA", "BBB"}, map[string][]PricePoint{
		"AAA": {{Date: week(0), Close: 100.5}, {Date: week(1), Close: 101.25}},
		"BBB": {{Date: week(1), Close: 7}},
	})

	var buf bytes.Buffer
	require.NoError(t, WritePricesCSV(&buf, frame))
	assert.Equal(t, "date,AAA,BBB\n2024-01-01,100.5,\n2024-01-08,101.25,7\n", buf.String())

	back, err := ReadPricesCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, frame.Tickers, back.Tickers)
	assert.Equal(t, frame.Closes[1], back.Closes[1])
}

func TestCSVProvider_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,AAA,BBB,CCC\n2024-01-01,1,2,3\n2024-01-08,2,3,4\n"), 0644))

	frame, err := NewCSVProvider(path).Fetch(context.Background(), []string{"CCC", "AAA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CCC", "AAA"}, frame.Tickers)
	assert.Equal(t, []float64{4, 2}, frame.Closes[1])
}

func newStubYahoo(bars map[string][]models.Bar, err error) *YahooProvider {
	p := NewYahooProvider(YahooOptions{LookbackYears: 1, AutoAdjust: true}, zerolog.New(nil).Level(zerolog.Disabled))
	p.now = func() time.Time { return time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC) }
	p.history = func(symbol string, params models.HistoryParams) ([]models.Bar, error) {
		if err != nil {
			return nil, err
		}
		return bars[symbol], nil
	}
	return p
}

func TestYahooProvider_Fetch(t *testing.T) {
	p := newStubYahoo(map[string][]models.Bar{
		"AAA": {
			{Date: time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC), Close: 90},
			{Date: week(0), Close: 100},
			{Date: week(1), Close: 0},
			{Date: week(2), Close: 110},
		},
		"BBB": {{Date: week(0), Close: 50}},
	}, nil)

	frame, err := p.Fetch(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, []float64{100, 50}, frame.Closes[0])
	assert.Equal(t, 110.0, frame.Closes[1][0])
}

func TestYahooProvider_Errors(t *testing.T) {
	_, err := newStubYahoo(nil, errors.New("rate limited")).Fetch(context.Background(), []string{"AAA"})
	assert.ErrorContains(t, err, "AAA")

	_, err = newStubYahoo(map[string][]models.Bar{}, nil).Fetch(context.Background(), []string{"AAA"})
	assert.ErrorIs(t, err, ErrNoPrices)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newStubYahoo(nil, nil).Fetch(ctx, []string{"AAA"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLookbackPeriod(t *testing.T) {
	assert.Equal(t, "1y", lookbackPeriod(1))
	assert.Equal(t, "5y", lookbackPeriod(3))
	assert.Equal(t, "10y", lookbackPeriod(10))
	assert.Equal(t, "max", lookbackPeriod(15))
}
