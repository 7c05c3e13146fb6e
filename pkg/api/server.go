// Package api serves the HTTP status API: health probes, share and
// connection status, and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/api/handlers"
)

// Server is the status API HTTP server.
type Server struct {
	http   *http.Server
	config APIConfig

	ready    chan struct{}
	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
}

// NewServer creates a status API server reporting on source. Defaults are
// applied so a zero APIConfig is usable.
func NewServer(config APIConfig, source handlers.Source) *Server {
	config.ApplyDefaults()
	return &Server{
		http: &http.Server{
			Handler:      NewRouter(source),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
		ready:  make(chan struct{}),
	}
}

// Start serves requests until ctx is cancelled or the listener fails. It
// returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress())
	if err != nil {
		return fmt.Errorf("API server listen on %s: %w", s.config.ListenAddress(), err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	logger.Info("API server listening", "address", ln.Addr().String())

	errc := make(chan error, 1)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		// ctx is already cancelled; shutdown gets its own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err, ok := <-errc:
		if !ok {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. It is idempotent.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.http.Shutdown(ctx); err != nil {
			err = fmt.Errorf("API server shutdown: %w", err)
			logger.Error("API server shutdown error", logger.KeyError, err)
			return
		}
		logger.Info("API server stopped")
	})
	return err
}

// Addr blocks until the server is listening and returns its address.
func (s *Server) Addr() string {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr().String()
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}
