// Package handlers provides HTTP handlers for stored backtest runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/esgfolio/internal/modules/backtest"
	"github.com/aristath/esgfolio/internal/modules/charts"
	"github.com/rs/zerolog"
)

// RunStore is the read/delete side of the backtest repository.
type RunStore interface {
	Get(ctx context.Context, id string) (*backtest.Result, error)
	List(ctx context.Context, limit int) ([]backtest.RunInfo, error)
	Delete(ctx context.Context, id string) error
}

// Handler handles backtest HTTP requests
type Handler struct {
	store  RunStore
	charts *charts.Service
	log    zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(store RunStore, chartService *charts.Service, log zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		charts: chartService,
		log:    log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleListRuns handles GET /api/backtests
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	runs, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backtest runs")
		http.Error(w, "Failed to list backtest runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []backtest.RunInfo{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"runs":  runs,
			"count": len(runs),
		},
		"metadata": metadata(),
	})
}

// HandleGetRun handles GET /api/backtests/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	res, ok := h.loadRun(w, r, id)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     res,
		"metadata": metadata(),
	})
}

// HandleGetWeights handles GET /api/backtests/{id}/weights
func (h *Handler) HandleGetWeights(w http.ResponseWriter, r *http.Request, id string) {
	res, ok := h.loadRun(w, r, id)
	if !ok {
		return
	}

	dates := make([]string, len(res.Periods))
	for i, d := range res.Dates() {
		dates[i] = d.Format("2006-01-02")
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"assets":     res.Assets,
			"dates":      dates,
			"weights":    res.Weights(),
			"returns":    res.Returns(),
			"cumulative": res.Cumulative(),
		},
		"metadata": metadata(),
	})
}

// HandleGetCumulative handles GET /api/backtests/{id}/cumulative
func (h *Handler) HandleGetCumulative(w http.ResponseWriter, r *http.Request, id string) {
	res, ok := h.loadRun(w, r, id)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"id":     res.ID,
			"points": h.charts.CumulativeSeries(res, r.URL.Query().Get("range")),
		},
		"metadata": metadata(),
	})
}

// HandleGetChart handles GET /api/backtests/{id}/chart.png?kind=cumulative|weights
func (h *Handler) HandleGetChart(w http.ResponseWriter, r *http.Request, id string) {
	res, ok := h.loadRun(w, r, id)
	if !ok {
		return
	}

	var (
		img []byte
		err error
	)
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "cumulative":
		img, err = h.charts.CumulativeReturnsPNG(res)
	case "weights":
		img, err = h.charts.WeightsPNG(res)
	default:
		http.Error(w, "Unknown chart kind: "+kind, http.StatusBadRequest)
		return
	}
	if errors.Is(err, charts.ErrNoData) {
		http.Error(w, "Run has no periods", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to render chart")
		http.Error(w, "Failed to render chart", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		h.log.Error().Err(err).Msg("Failed to write chart response")
	}
}

// HandleDeleteRun handles DELETE /api/backtests/{id}
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Delete(r.Context(), id)
	if errors.Is(err, backtest.ErrRunNotFound) {
		http.Error(w, "Backtest run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to delete backtest run")
		http.Error(w, "Failed to delete backtest run", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request, id string) (*backtest.Result, bool) {
	res, err := h.store.Get(r.Context(), id)
	if errors.Is(err, backtest.ErrRunNotFound) {
		http.Error(w, "Backtest run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("run_id", id).Msg("Failed to load backtest run")
		http.Error(w, "Failed to load backtest run", http.StatusInternalServerError)
		return nil, false
	}
	return res, true
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
