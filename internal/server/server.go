// Package server hosts the token service: POST /oauth/token, POST /oauth/verify and,
// optionally, an embedded users/tokens store.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/brizzai/authlab/internal/auth"
	"github.com/brizzai/authlab/internal/config"
	"github.com/brizzai/authlab/internal/logger"
	"github.com/brizzai/authlab/internal/server/handler"
	"github.com/brizzai/authlab/internal/userstore"
	"go.uber.org/zap"
)

const (
	// defaultShutdownTimeout is used when server.shutdown_timeout is unset
	defaultShutdownTimeout = 5 * time.Second
)

// Server represents the token service HTTP server.
type Server struct {
	config  *config.Config
	auth    *auth.Service
	handler *handler.Handler
	http    *http.Server
}

// NewServer creates a server for cfg. embedded is nil unless store.embedded is set.
func NewServer(cfg *config.Config, authService *auth.Service, embedded *userstore.MemoryServer) *Server {
	if cfg == nil {
		logger.Fatal("Config cannot be nil")
	}
	if authService == nil {
		logger.Fatal("Auth service cannot be nil")
	}

	var store http.Handler
	if embedded != nil {
		store = embedded.Handler()
	}

	srv := &Server{
		config:  cfg,
		auth:    authService,
		handler: handler.NewHandler(authService, store),
	}
	srv.http = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.handler.CreateHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Listen binds the configured address. Serve must be called with the returned listener.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return ln, nil
}

// Serve blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Serve(ln net.Listener) error {
	logger.Info("Starting token service",
		zap.String("address", ln.Addr().String()),
		zap.String("redirect_url", s.config.RedirectURL()),
	)
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	logger.Info("Shutting down token service", zap.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Start serves until ctx is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}

	// Channel for server errors
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}
