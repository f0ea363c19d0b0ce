package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtests", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetRun(w, r, chi.URLParam(r, "id"))
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleDeleteRun(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/weights", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetWeights(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/cumulative", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetCumulative(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/chart.png", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetChart(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
