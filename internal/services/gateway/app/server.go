// Package server hosts the gateway HTTP/WebSocket process.
//
// It exposes the session manager over a JSON API for control operations and
// a WebSocket endpoint that streams per-session events to subscribers. The
// server owns no session state itself; every operation delegates to the
// manager so the transport surface stays thin.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/pairline/internal/platform/timeouts"
	"github.com/louisbranch/pairline/internal/session"
)

// Config defines the inputs for the gateway transport boundary.
type Config struct {
	HTTPAddr string
	// APISecret enables bearer token checks on the API and WebSocket
	// routes when set. Empty leaves the surface open, for local use.
	APISecret         string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the gateway HTTP process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	started         time.Time
}

// NewServer builds a configured gateway server around the session manager.
func NewServer(config Config, manager *session.Manager) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if manager == nil {
		return nil, errors.New("session manager is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	server := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		started:         time.Now(),
	}
	server.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(manager, newBearerGuard(config.APISecret), server.uptime),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return server, nil
}

// Run creates and serves a gateway server until the context ends.
func Run(ctx context.Context, config Config, manager *session.Manager) error {
	server, err := NewServer(config, manager)
	if err != nil {
		return fmt.Errorf("init gateway server: %w", err)
	}

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve gateway: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("gateway server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("gateway server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.started)
}
