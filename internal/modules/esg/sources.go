package esg

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aristath/esgfolio/internal/utils"
	"github.com/rs/zerolog"
)

// Source names accepted in a source priority list.
const (
	SourceInline = "inline"
	SourceCSV    = "csv"
)

// ErrUnknownSource is returned for unsupported source names.
var ErrUnknownSource = errors.New("unknown ESG source")

// Source supplies raw ESG risk scores. A nil entry or a missing key means the
// source has no score for that ticker.
type Source interface {
	Name() string
	Scores(ctx context.Context, tickers []string) (map[string]*float64, error)
}

// InlineSource serves scores listed directly in the strategy file.
type InlineSource struct {
	scores map[string]*float64
}

// NewInlineSource creates a source over a ticker → score map.
func NewInlineSource(scores map[string]*float64) *InlineSource {
	normalized := make(map[string]*float64, len(scores))
	for ticker, score := range scores {
		normalized[utils.NormalizeTicker(ticker)] = score
	}
	return &InlineSource{scores: normalized}
}

// Name implements Source.
func (s *InlineSource) Name() string { return SourceInline }

// Scores implements Source.
func (s *InlineSource) Scores(_ context.Context, tickers []string) (map[string]*float64, error) {
	out := make(map[string]*float64, len(tickers))
	for _, t := range tickers {
		if score, ok := s.scores[utils.NormalizeTicker(t)]; ok {
			out[t] = score
		}
	}
	return out, nil
}

// CSVSource reads "ticker,score" rows from a file. A header row is skipped
// when its score column is not numeric; a blank score means missing.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source reading path on every call.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name implements Source.
func (s *CSVSource) Name() string { return SourceCSV }

// Scores implements Source.
func (s *CSVSource) Scores(_ context.Context, tickers []string) (map[string]*float64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ESG scores file: %w", err)
	}
	defer f.Close()

	all, err := parseScoresCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	out := make(map[string]*float64, len(tickers))
	for _, t := range tickers {
		if score, ok := all[utils.NormalizeTicker(t)]; ok {
			out[t] = score
		}
	}
	return out, nil
}

func parseScoresCSV(r io.Reader) (map[string]*float64, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	scores := make(map[string]*float64)
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected ticker,score", line)
		}

		ticker := utils.NormalizeTicker(record[0])
		raw := strings.TrimSpace(record[1])
		if ticker == "" {
			continue
		}
		if raw == "" {
			scores[ticker] = nil
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid score %q", line, raw)
		}
		scores[ticker] = &v
	}
	return scores, nil
}

// Collector asks sources in priority order; the first source with a score
// for a ticker wins.
type Collector struct {
	sources []Source
	log     zerolog.Logger
}

// NewCollector creates a collector over sources, highest priority first.
func NewCollector(sources []Source, log zerolog.Logger) *Collector {
	return &Collector{
		sources: sources,
		log:     log.With().Str("component", "esg_collector").Logger(),
	}
}

// Collect returns a score (possibly nil) for every ticker. A failing source
// is logged and skipped.
func (c *Collector) Collect(ctx context.Context, tickers []string) map[string]*float64 {
	out := make(map[string]*float64, len(tickers))
	for _, t := range tickers {
		out[t] = nil
	}

	for _, src := range c.sources {
		missing := missingTickers(out, tickers)
		if len(missing) == 0 {
			break
		}
		scores, err := src.Scores(ctx, missing)
		if err != nil {
			c.log.Warn().Err(err).Str("source", src.Name()).Msg("ESG source failed, trying next")
			continue
		}
		for t, s := range scores {
			if s != nil {
				out[t] = s
			}
		}
	}

	if missing := missingTickers(out, tickers); len(missing) > 0 {
		c.log.Info().Strs("tickers", missing).Msg("No ESG score found, will use median fill")
	}
	return out
}

func missingTickers(scores map[string]*float64, tickers []string) []string {
	var missing []string
	for _, t := range tickers {
		if scores[t] == nil {
			missing = append(missing, t)
		}
	}
	return missing
}

// SourcesFromPriority builds sources for the given priority list. The CSV
// source is skipped when no path is configured.
func SourcesFromPriority(priority []string, inline map[string]*float64, csvPath string) ([]Source, error) {
	sources := make([]Source, 0, len(priority))
	for _, name := range priority {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case SourceInline:
			sources = append(sources, NewInlineSource(inline))
		case SourceCSV:
			if csvPath != "" {
				sources = append(sources, NewCSVSource(csvPath))
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
	}
	return sources, nil
}
