// Package api exposes the routing engine over HTTP.
//
// Routes:
//
//	POST /v1/route                              route one message
//	POST /v1/outcomes                           record the outcome of a routed interaction
//	GET  /v1/decisions/{requestID}              fetch a logged decision
//	GET  /v1/users/{userID}/profile             learned profile snapshot
//	GET  /v1/users/{userID}/recommendations     ranked flow recommendations
//	GET  /healthz                               liveness
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/OracleRouter/internal/engine"
)

// Server timeouts.
const (
	DefaultAddr          = ":8080"
	DefaultShutdownGrace = 10 * time.Second
	requestTimeout       = 30 * time.Second
	maxBodyBytes         = 1 << 20
)

// Server serves the routing API.
type Server struct {
	engine     *engine.Engine
	router     chi.Router
	httpServer *http.Server
}

// NewServer creates a server around the engine.
func NewServer(e *engine.Engine) *Server {
	s := &Server{engine: e}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Get("/healthz", s.healthHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/route", s.routeHandler)
		r.Post("/outcomes", s.outcomeHandler)
		r.Get("/decisions/{requestID}", s.decisionHandler)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/profile", s.profileHandler)
			r.Get("/recommendations", s.recommendationsHandler)
		})
	})

	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down API")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownGrace)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		return nil
	}
}
