// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrDimensionMismatch is returned when aligned inputs disagree in shape.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// ReturnMatrix holds periodic log returns aligned on a common time index.
// Values is indexed [period][asset]; NaN marks a missing observation.
type ReturnMatrix struct {
	Dates  []time.Time
	Assets []string
	Values [][]float64
}

// NewReturnMatrix builds a ReturnMatrix and validates its shape and ordering.
func NewReturnMatrix(dates []time.Time, assets []string, values [][]float64) (*ReturnMatrix, error) {
	m := &ReturnMatrix{Dates: dates, Assets: assets, Values: values}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the matrix is rectangular and chronologically ordered
// without duplicate timestamps.
func (m *ReturnMatrix) Validate() error {
	if len(m.Assets) == 0 {
		return fmt.Errorf("%w: no assets", ErrDimensionMismatch)
	}
	if len(m.Dates) != len(m.Values) {
		return fmt.Errorf("%w: %d dates for %d rows", ErrDimensionMismatch, len(m.Dates), len(m.Values))
	}
	for t, row := range m.Values {
		if len(row) != len(m.Assets) {
			return fmt.Errorf("%w: row %d has %d values, expected %d", ErrDimensionMismatch, t, len(row), len(m.Assets))
		}
		if t > 0 && !m.Dates[t].After(m.Dates[t-1]) {
			return fmt.Errorf("dates must be strictly ascending: %s follows %s",
				m.Dates[t].Format("2006-01-02"), m.Dates[t-1].Format("2006-01-02"))
		}
	}
	return nil
}

// Len returns the number of periods.
func (m *ReturnMatrix) Len() int {
	return len(m.Values)
}

// NumAssets returns the number of asset columns.
func (m *ReturnMatrix) NumAssets() int {
	return len(m.Assets)
}

// Window returns rows [start, end) as a matrix sharing the receiver's backing
// rows. Callers must treat the result as read-only.
func (m *ReturnMatrix) Window(start, end int) *ReturnMatrix {
	return &ReturnMatrix{
		Dates:  m.Dates[start:end],
		Assets: m.Assets,
		Values: m.Values[start:end],
	}
}

// Row returns the observations of period t.
func (m *ReturnMatrix) Row(t int) []float64 {
	return m.Values[t]
}

// Column copies asset j's observations in time order, missing values included.
func (m *ReturnMatrix) Column(j int) []float64 {
	col := make([]float64, len(m.Values))
	for t, row := range m.Values {
		col[t] = row[j]
	}
	return col
}

// AssetIndex returns the column of asset, or -1.
func (m *ReturnMatrix) AssetIndex(asset string) int {
	for j, a := range m.Assets {
		if a == asset {
			return j
		}
	}
	return -1
}

// DropMissing returns the finite values of xs, preserving order.
func DropMissing(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// ESGVector holds normalized per-asset ESG scores in [0,1].
type ESGVector struct {
	Assets []string
	Scores []float64
}

// Align returns the scores ordered by assets.
func (v ESGVector) Align(assets []string) ([]float64, error) {
	if len(v.Assets) != len(v.Scores) {
		return nil, fmt.Errorf("%w: %d ESG assets for %d scores", ErrDimensionMismatch, len(v.Assets), len(v.Scores))
	}
	byAsset := make(map[string]float64, len(v.Assets))
	for i, a := range v.Assets {
		byAsset[a] = v.Scores[i]
	}
	out := make([]float64, len(assets))
	for i, a := range assets {
		score, ok := byAsset[a]
		if !ok {
			return nil, fmt.Errorf("%w: no ESG score for %s", ErrDimensionMismatch, a)
		}
		out[i] = score
	}
	return out, nil
}
