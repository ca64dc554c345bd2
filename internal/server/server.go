// Package server exposes the wait engine over a local HTTP JSON API, plus
// health and Prometheus metrics endpoints. The transport is deliberately
// thin: every operation maps one-to-one onto an engine call.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclaw/smartwaitd/internal/logger"
	"github.com/openclaw/smartwaitd/internal/store"
	"github.com/openclaw/smartwaitd/internal/wait"
)

// Lister reads terminal records for listing queries.
type Lister interface {
	List(status string, limit int) ([]store.Record, error)
}

// Defaults fill in omitted register fields before they reach the engine.
type Defaults struct {
	Display             string
	TimeoutSeconds      int
	PollIntervalSeconds float64
}

// Config configures the HTTP server.
type Config struct {
	Listen   string
	Defaults Defaults
}

// Server is the daemon's HTTP surface.
type Server struct {
	cfg      Config
	engine   *wait.Engine
	lister   Lister
	logger   *logger.Logger
	http     *http.Server
	gatherer prometheus.Gatherer
}

// New builds the server and its routes. gatherer may be nil to disable the
// metrics endpoint.
func New(cfg Config, engine *wait.Engine, lister Lister, gatherer prometheus.Gatherer, log *logger.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		lister:   lister,
		logger:   log,
		gatherer: gatherer,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/waits", s.handleRegister)
	mux.HandleFunc("GET /api/waits", s.handleList)
	mux.HandleFunc("GET /api/waits/{id}", s.handleGet)
	mux.HandleFunc("PATCH /api/waits/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/waits/{id}", s.handleCancel)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening",
			logger.Field{Key: "addr", Value: s.cfg.Listen})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", err)
		}
	}()
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// httpStatusFor maps engine error kinds onto HTTP statuses.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, wait.ErrInvalidArg):
		return http.StatusBadRequest
	case errors.Is(err, wait.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wait.ErrAlreadyTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": fmt.Sprintf("%v", err)}
}
