package esg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	assets := []string{"AAA", "BBB", "CCC"}

	tests := []struct {
		name     string
		raw      map[string]*float64
		expected []float64
	}{
		{
			name:     "lower risk scores best",
			raw:      map[string]*float64{"AAA": ptr(10), "BBB": ptr(20), "CCC": ptr(30)},
			expected: []float64{1, 0.5, 0},
		},
		{
			name:     "nil score filled with median",
			raw:      map[string]*float64{"AAA": ptr(10), "BBB": nil, "CCC": ptr(30)},
			expected: []float64{1, 0.5, 0},
		},
		{
			name:     "absent key filled with median",
			raw:      map[string]*float64{"AAA": ptr(12), "CCC": ptr(40)},
			expected: []float64{1, 0.5, 0},
		},
		{
			name:     "constant scores",
			raw:      map[string]*float64{"AAA": ptr(25), "BBB": ptr(25), "CCC": ptr(25)},
			expected: []float64{0, 0, 0},
		},
		{
			name:     "no scores",
			raw:      map[string]*float64{},
			expected: []float64{0, 0, 0},
		},
		{
			name:     "non-finite score treated as missing",
			raw:      map[string]*float64{"AAA": ptr(10), "BBB": ptr(math.NaN()), "CCC": ptr(30)},
			expected: []float64{1, 0.5, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := Normalize(tt.raw, assets, MethodZScoreTo01)
			require.NoError(t, err)
			assert.Equal(t, assets, vec.Assets)
			require.Len(t, vec.Scores, len(tt.expected))
			for i := range tt.expected {
				assert.InDelta(t, tt.expected[i], vec.Scores[i], 1e-12, "asset %s", assets[i])
			}
		})
	}
}

func TestNormalize_Range(t *testing.T) {
	assets := []string{"A", "B", "C", "D", "E"}
	raw := map[string]*float64{"A": ptr(18.2), "B": ptr(31.5), "C": ptr(9.9), "D": ptr(22.0), "E": ptr(27.4)}

	vec, err := Normalize(raw, assets, MethodZScoreTo01)
	require.NoError(t, err)
	for _, s := range vec.Scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.InDelta(t, 1.0, vec.Scores[2], 1e-12)
	assert.InDelta(t, 0.0, vec.Scores[1], 1e-12)
}

func TestNormalize_SingleAsset(t *testing.T) {
	vec, err := Normalize(map[string]*float64{"A": ptr(20)}, []string{"A"}, MethodZScoreTo01)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, vec.Scores)
}

func TestNormalize_UnknownMethod(t *testing.T) {
	_, err := Normalize(nil, []string{"A"}, "rank")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}
