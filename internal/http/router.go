package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Health http.HandlerFunc
	// DeadLetters is nil when no database is configured.
	DeadLetters http.Handler
}

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
)

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(instrument(healthPath, metricsPath))
	r.Handle(metricsPath, promhttp.Handler())

	r.Get(healthPath, h.Health)
	if h.DeadLetters != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Method(http.MethodGet, "/dead-letters", h.DeadLetters)
		})
	}

	return r
}
