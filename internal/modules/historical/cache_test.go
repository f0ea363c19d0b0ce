package historical

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	frame *PriceFrame
	err   error
	calls int
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Fetch(context.Context, []string) (*PriceFrame, error) {
	p.calls++
	return p.frame, p.err
}

func TestCache_LoadOrFetch(t *testing.T) {
	frame := NewPriceFrame([]string{"AAA", "BBB"}, map[string][]PricePoint{
		"AAA": {{Date: week(0), Close: 100}, {Date: week(1), Close: 101}},
		"BBB": {{Date: week(1), Close: 50}},
	})
	provider := &countingProvider{frame: frame}
	cache := NewCache(t.TempDir(), provider, zerolog.New(nil).Level(zerolog.Disabled))
	tickers := []string{"AAA", "BBB"}

	first, err := cache.LoadOrFetch(context.Background(), tickers)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
	assert.FileExists(t, cache.Path(tickers))

	second, err := cache.LoadOrFetch(context.Background(), tickers)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls, "second load should hit the cache")

	assert.Equal(t, first.Tickers, second.Tickers)
	require.Equal(t, first.Len(), second.Len())
	for i := range first.Dates {
		assert.True(t, first.Dates[i].Equal(second.Dates[i]))
	}
	assert.Equal(t, 101.0, second.Closes[1][0])
	assert.Equal(t, first.Closes[0][0], second.Closes[0][0])

	require.NoError(t, cache.Invalidate(tickers))
	_, err = cache.LoadOrFetch(context.Background(), tickers)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestCache_CorruptFileRefetches(t *testing.T) {
	provider := &countingProvider{frame: NewPriceFrame([]string{"AAA"}, map[string][]PricePoint{
		"AAA": {{Date: week(0), Close: 1}},
	})}
	cache := NewCache(t.TempDir(), provider, zerolog.New(nil).Level(zerolog.Disabled))
	require.NoError(t, os.WriteFile(cache.Path([]string{"AAA"}), []byte{0xc1}, 0644))

	_, err := cache.LoadOrFetch(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestCache_ProviderError(t *testing.T) {
	provider := &countingProvider{err: errors.New("offline")}
	cache := NewCache(t.TempDir(), provider, zerolog.New(nil).Level(zerolog.Disabled))

	_, err := cache.LoadOrFetch(context.Background(), []string{"AAA"})
	assert.Error(t, err)
	assert.NoFileExists(t, cache.Path([]string{"AAA"}))
}

func TestCache_InvalidateMissing(t *testing.T) {
	cache := NewCache(t.TempDir(), &countingProvider{}, zerolog.New(nil).Level(zerolog.Disabled))
	assert.NoError(t, cache.Invalidate([]string{"ZZZ"}))
}
