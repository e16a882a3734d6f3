// Package server exposes the assistant over HTTP: session management,
// the run endpoint (streaming and buffered), health and readiness
// probes, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebttikar/oip-assistant/internal/logging"
	"github.com/ebttikar/oip-assistant/internal/session"
)

// New creates a server serving the given session store and responder.
func New(cfg *Config, sessions *session.Store, resp responder) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if sessions == nil {
		return nil, errors.New("server: session store is required")
	}
	if resp == nil {
		return nil, errors.New("server: responder is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Streamed turns hold the connection open across retrieval and
		// completion, so this must cover a full turn.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	reg := prometheus.NewRegistry()
	m := newServerMetrics(reg, sessions.Count)

	s := &Server{
		responder: resp,
		sessions:  sessions,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   m,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	protected := func(h http.HandlerFunc) http.Handler {
		return s.requestLogger(s.authMiddleware(rl.middleware(s.metricsMiddleware(h))))
	}
	mux.Handle("POST /api/sessions", protected(s.handleCreateSession))
	mux.Handle("GET /api/sessions", protected(s.handleListSessions))
	mux.Handle("GET /api/sessions/{id}", protected(s.handleGetSession))
	mux.Handle("DELETE /api/sessions/{id}", protected(s.handleDeleteSession))
	mux.Handle("POST /api/run", protected(s.handleRun))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the server until ctx is cancelled or the listener fails,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening",
			"addr", s.httpServer.Addr,
			"auth", s.cfg.APIKey != "",
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen on %s: %w", s.httpServer.Addr, err)
	case <-ctx.Done():
	}

	s.log.Info("server shutting down", "timeout", s.cfg.ShutdownTimeout)
	s.stopRL()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
