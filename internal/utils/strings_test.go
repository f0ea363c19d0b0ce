package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "AAPL",
			expected: []string{"AAPL"},
		},
		{
			name:     "varied spacing",
			input:    "AAPL,  MSFT , XOM",
			expected: []string{"AAPL", "MSFT", "XOM"},
		},
		{
			name:     "trailing comma",
			input:    "NEE,",
			expected: []string{"NEE"},
		},
		{
			name:     "leading comma",
			input:    ",JNJ",
			expected: []string{"JNJ"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "BRK-B", NormalizeTicker(" brk-b "))
	assert.Equal(t, "", NormalizeTicker("  "))
}
