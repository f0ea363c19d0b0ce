package historical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores fetched price frames on disk, one msgpack file per ticker set.
type Cache struct {
	dir      string
	provider Provider
	log      zerolog.Logger
}

// NewCache creates a cache in dir in front of provider.
func NewCache(dir string, provider Provider, log zerolog.Logger) *Cache {
	return &Cache{
		dir:      dir,
		provider: provider,
		log:      log.With().Str("component", "price_cache").Logger(),
	}
}

// Path returns the cache file used for tickers.
func (c *Cache) Path(tickers []string) string {
	return filepath.Join(c.dir, fmt.Sprintf("weekly_prices_%s.msgpack", strings.Join(tickers, "_")))
}

// LoadOrFetch returns the cached frame for tickers, fetching and storing it
// when no cache file exists.
func (c *Cache) LoadOrFetch(ctx context.Context, tickers []string) (*PriceFrame, error) {
	path := c.Path(tickers)

	if data, err := os.ReadFile(path); err == nil {
		var frame PriceFrame
		if err := msgpack.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Str("path", path).Msg("Corrupt price cache, refetching")
		} else {
			c.log.Info().Str("path", path).Int("dates", frame.Len()).Msg("Loaded cached prices")
			return &frame, nil
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	c.log.Info().Str("provider", c.provider.Name()).Strs("tickers", tickers).Msg("Fetching prices")
	frame, err := c.provider.Fetch(ctx, tickers)
	if err != nil {
		return nil, err
	}

	if err := c.store(path, frame); err != nil {
		return nil, err
	}
	c.log.Info().Str("path", path).Int("dates", frame.Len()).Msg("Saved prices to cache")
	return frame, nil
}

// Invalidate removes the cache file for tickers, if any.
func (c *Cache) Invalidate(tickers []string) error {
	if err := os.Remove(c.Path(tickers)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove price cache: %w", err)
	}
	return nil
}

func (c *Cache) store(path string, frame *PriceFrame) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	data, err := msgpack.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode prices: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}
	return nil
}
