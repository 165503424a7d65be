// Package server runs the sink's HTTP listener for the lifetime of a context.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/AtRiskMedia/tractstack-beacon/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-beacon/pkg/config"
)

// Server serves one handler until its context ends, then drains in-flight
// requests for at most DrainTimeout.
type Server struct {
	httpServer   *http.Server
	logger       *logging.ChanneledLogger
	DrainTimeout time.Duration
}

// New binds handler to addr with the SERVER_* timeouts.
func New(addr string, handler http.Handler, logger *logging.ChanneledLogger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerWriteTimeout,
			IdleTimeout:  config.ServerIdleTimeout,
		},
		logger:       logger,
		DrainTimeout: config.ShutdownTimeout,
	}
}

// Run listens on the configured address. See Serve.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled or the listener fails. A
// cancelled context is a clean stop and returns the drain result.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.System().Info("Sink listening", "address", ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("sink listener stopped: %w", err)
	case <-ctx.Done():
	}

	s.logger.Shutdown().Info("Draining HTTP connections", "timeout", s.DrainTimeout)
	drainCtx, cancel := context.WithTimeout(context.Background(), s.DrainTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("failed to drain HTTP connections: %w", err)
	}
	<-serveErr
	return nil
}
