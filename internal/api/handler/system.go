package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/findoc/internal/analysis"
	"github.com/kiranshivaraju/findoc/internal/api/response"
	"github.com/kiranshivaraju/findoc/internal/documents"
	"github.com/kiranshivaraju/findoc/internal/queue"
)

const Version = "1.0.0"

// PipelineInfo describes the configured analysis pipeline.
type PipelineInfo interface {
	Agents() []string
	Tools() []string
	Components() []string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

var endpoints = map[string]string{
	"analyze":      "POST /analyze",
	"analyses":     "GET /analyses",
	"analysis":     "GET /analyses/{id}",
	"files":        "GET /files",
	"file":         "GET|DELETE /files/{id}",
	"users":        "POST /users",
	"user":         "GET /users/{id}",
	"queue_status": "GET /queue/status",
	"health":       "GET /health",
	"metrics":      "GET /metrics",
}

// NewRootHandler returns the service banner and endpoint index for GET /.
func NewRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"service":   "FinDoc Financial Document Analyzer",
			"status":    "running",
			"version":   Version,
			"endpoints": endpoints,
		})
	}
}

// NewHealthHandler reports dependency checks. An unavailable broker only
// switches the reported mode; a failing database makes the service degraded.
func NewHealthHandler(db Pinger, q queue.Queue, p PipelineInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"queue":    "ok",
		}
		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		mode := analysis.ModeQueued
		if !q.IsAvailable(r.Context()) {
			checks["queue"] = "unavailable"
			mode = analysis.ModeSynchronous
		}

		if checks["database"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":              "healthy",
			"version":             Version,
			"services":            checks,
			"processing_mode":     mode,
			"agents":              p.Agents(),
			"tools":               p.Tools(),
			"components_analyzed": p.Components(),
			"supported_formats":   documents.SupportedFormats,
		})
	}
}

type queueStatusResponse struct {
	Available bool   `json:"available"`
	Mode      string `json:"mode"`
	Message   string `json:"message,omitempty"`
	*queue.Stats
}

// NewQueueStatusHandler returns queue depth, or the synchronous-fallback
// indicator when the broker cannot be reached.
func NewQueueStatusHandler(q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unavailable := queueStatusResponse{
			Available: false,
			Mode:      analysis.ModeSynchronous,
			Message:   "Queue unavailable, falling back to synchronous processing",
		}
		if !q.IsAvailable(r.Context()) {
			response.JSON(w, unavailable)
			return
		}
		stats, err := q.Status(r.Context())
		if err != nil {
			response.JSON(w, unavailable)
			return
		}
		response.JSON(w, queueStatusResponse{Available: true, Mode: analysis.ModeQueued, Stats: &stats})
	}
}
