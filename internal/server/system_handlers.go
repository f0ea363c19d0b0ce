package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/aristath/esgfolio/internal/database"
	"github.com/aristath/esgfolio/internal/scheduler"
	"github.com/rs/zerolog"
)

// SystemStatusResponse represents system status
type SystemStatusResponse struct {
	Status        string     `json:"status"`
	Uptime        string     `json:"uptime"`
	Goroutines    int        `json:"goroutines"`
	MemoryMB      float64    `json:"memory_mb"`
	Database      string     `json:"database,omitempty"`
	JobRunning    bool       `json:"job_running"`
	LastJobStart  *time.Time `json:"last_job_start,omitempty"`
	LastJobError  string     `json:"last_job_error,omitempty"`
	LastJobFinish *time.Time `json:"last_job_finish,omitempty"`
}

// SystemHandlers handles system-wide monitoring and manual job triggers
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	job       scheduler.Job
	startedAt time.Time

	mu         sync.Mutex
	running    bool
	lastStart  *time.Time
	lastFinish *time.Time
	lastErr    string
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, db *database.DB, job scheduler.Job) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		job:       job,
		startedAt: time.Now(),
	}
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.mu.Lock()
	response := SystemStatusResponse{
		Status:        "ok",
		Uptime:        time.Since(h.startedAt).Round(time.Second).String(),
		Goroutines:    runtime.NumGoroutine(),
		MemoryMB:      float64(mem.Alloc) / 1024 / 1024,
		JobRunning:    h.running,
		LastJobStart:  h.lastStart,
		LastJobFinish: h.lastFinish,
		LastJobError:  h.lastErr,
	}
	h.mu.Unlock()

	if h.db != nil {
		response.Database = h.db.Path()
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerBacktest handles POST /api/jobs/backtest. The job runs in the
// background; a second trigger while it runs is rejected.
func (h *SystemHandlers) HandleTriggerBacktest(w http.ResponseWriter, r *http.Request) {
	if h.job == nil {
		http.Error(w, "Backtest job not configured", http.StatusServiceUnavailable)
		return
	}

	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		http.Error(w, "Backtest already running", http.StatusConflict)
		return
	}
	now := time.Now()
	h.running = true
	h.lastStart = &now
	h.mu.Unlock()

	go h.runJob()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "accepted",
		"message": "Backtest started",
	})
}

func (h *SystemHandlers) runJob() {
	err := h.job.Run()
	if err != nil {
		h.log.Error().Err(err).Msg("Manually triggered backtest failed")
	}

	finished := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.lastFinish = &finished
	h.lastErr = ""
	if err != nil {
		h.lastErr = err.Error()
	}
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
