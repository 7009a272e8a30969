package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/findoc/internal/api/middleware"
	"github.com/kiranshivaraju/findoc/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	RootHandler        http.HandlerFunc
	HealthHandler      http.HandlerFunc
	AnalyzeHandler     http.HandlerFunc
	ListAnalyses       http.HandlerFunc
	GetAnalysis        http.HandlerFunc
	ListFiles          http.HandlerFunc
	GetFile            http.HandlerFunc
	DeleteFile         http.HandlerFunc
	CreateUser         http.HandlerFunc
	GetUser            http.HandlerFunc
	QueueStatusHandler http.HandlerFunc
	MetricsHandler     http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/", orNotImplemented(deps.RootHandler))
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/analyze", orNotImplemented(deps.AnalyzeHandler))

		r.Get("/analyses", orNotImplemented(deps.ListAnalyses))
		r.Get("/analyses/{id}", orNotImplemented(deps.GetAnalysis))

		r.Get("/files", orNotImplemented(deps.ListFiles))
		r.Get("/files/{id}", orNotImplemented(deps.GetFile))
		r.Delete("/files/{id}", orNotImplemented(deps.DeleteFile))

		r.Post("/users", orNotImplemented(deps.CreateUser))
		r.Get("/users/{id}", orNotImplemented(deps.GetUser))

		r.Get("/queue/status", orNotImplemented(deps.QueueStatusHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
