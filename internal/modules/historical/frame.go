// Package historical acquires close prices and turns them into the weekly
// log-return matrix the backtest consumes.
package historical

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/esgfolio/internal/domain"
	"github.com/aristath/esgfolio/internal/utils"
)

// ErrNoPrices is returned when a provider yields no usable observations.
var ErrNoPrices = errors.New("no price data")

// PricePoint is one close observation.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// PriceFrame holds close prices aligned on a common date index.
// Closes is indexed [date][ticker]; NaN marks a missing close.
type PriceFrame struct {
	Dates   []time.Time `msgpack:"dates"`
	Tickers []string    `msgpack:"tickers"`
	Closes  [][]float64 `msgpack:"closes"`
}

// NewPriceFrame outer-joins per-ticker series on date. Dates are truncated
// to the day; duplicate dates within a series keep the last close.
func NewPriceFrame(tickers []string, series map[string][]PricePoint) *PriceFrame {
	index := make(map[time.Time]map[string]float64)
	for _, ticker := range tickers {
		for _, p := range series[ticker] {
			day := truncateDay(p.Date)
			row, ok := index[day]
			if !ok {
				row = make(map[string]float64, len(tickers))
				index[day] = row
			}
			row[ticker] = p.Close
		}
	}

	dates := make([]time.Time, 0, len(index))
	for d := range index {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	frame := &PriceFrame{
		Dates:   dates,
		Tickers: append([]string(nil), tickers...),
		Closes:  make([][]float64, len(dates)),
	}
	for t, d := range dates {
		row := make([]float64, len(tickers))
		for j, ticker := range tickers {
			if v, ok := index[d][ticker]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		frame.Closes[t] = row
	}
	return frame
}

// Len returns the number of dates.
func (f *PriceFrame) Len() int {
	return len(f.Dates)
}

// Select returns a frame restricted to tickers, in that order.
func (f *PriceFrame) Select(tickers []string) (*PriceFrame, error) {
	cols := make([]int, len(tickers))
	for i, ticker := range tickers {
		cols[i] = -1
		for j, have := range f.Tickers {
			if utils.NormalizeTicker(have) == utils.NormalizeTicker(ticker) {
				cols[i] = j
				break
			}
		}
		if cols[i] < 0 {
			return nil, fmt.Errorf("%w: ticker %s not in price frame", ErrNoPrices, ticker)
		}
	}

	out := &PriceFrame{
		Dates:   f.Dates,
		Tickers: append([]string(nil), tickers...),
		Closes:  make([][]float64, len(f.Closes)),
	}
	for t, row := range f.Closes {
		selected := make([]float64, len(cols))
		for i, j := range cols {
			selected[i] = row[j]
		}
		out.Closes[t] = selected
	}
	return out, nil
}

// ToLogReturns sorts the frame by date and computes log(p_t / p_{t-1}) per
// ticker. A return is missing when either close is missing or not positive.
// Rows where every ticker is missing are dropped, so the first date never
// appears in the output.
func ToLogReturns(f *PriceFrame) (*domain.ReturnMatrix, error) {
	order := make([]int, len(f.Dates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return f.Dates[order[a]].Before(f.Dates[order[b]]) })

	var (
		dates  []time.Time
		values [][]float64
	)
	for k := 1; k < len(order); k++ {
		prev, cur := f.Closes[order[k-1]], f.Closes[order[k]]
		row := make([]float64, len(f.Tickers))
		anyPresent := false
		for j := range row {
			row[j] = logReturn(prev[j], cur[j])
			if !math.IsNaN(row[j]) {
				anyPresent = true
			}
		}
		if !anyPresent {
			continue
		}
		dates = append(dates, f.Dates[order[k]])
		values = append(values, row)
	}

	if len(values) == 0 {
		return nil, ErrNoPrices
	}
	return domain.NewReturnMatrix(dates, f.Tickers, values)
}

func logReturn(prev, cur float64) float64 {
	if math.IsNaN(prev) || math.IsNaN(cur) || prev <= 0 || cur <= 0 {
		return math.NaN()
	}
	return math.Log(cur / prev)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
