// Package core provides the ops HTTP surface for the delay engine: health
// probes, Prometheus metrics and a manual run trigger, behind a small
// middleware chain.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"delaywatch/internal/monitor"
)

// defaultRequestTimeout bounds a request, including a synchronous run.
const defaultRequestTimeout = 5 * time.Minute

// RunTrigger starts a monitoring run on demand.
type RunTrigger interface {
	Trigger(ctx context.Context) (monitor.MonitorRunReport, error)
}

// Server holds the ops endpoints' dependencies.
type Server struct {
	Logger       *slog.Logger
	Runs         RunTrigger
	HealthProbes []HealthProbe
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	RequestTimeout time.Duration

	router *chi.Mux
}

// NewServer checks required dependencies and prepares an empty router.
// Call MountRoutes before serving.
func NewServer(logger *slog.Logger, runs RunTrigger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if runs == nil {
		return nil, fmt.Errorf("run trigger must not be nil")
	}
	return &Server{
		Logger:         logger,
		Runs:           runs,
		RequestTimeout: defaultRequestTimeout,
		router:         chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}
