package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Timeouts configures the underlying http.Server. Zero values select defaults.
type Timeouts struct {
	ReadHeader time.Duration
	Write      time.Duration
}

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultWriteTimeout      = 10 * time.Second
)

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// New constructs a server listening on the provided port.
func New(port int, handler http.Handler, timeouts Timeouts) *Server {
	if timeouts.ReadHeader <= 0 {
		timeouts.ReadHeader = defaultReadHeaderTimeout
	}
	if timeouts.Write <= 0 {
		timeouts.Write = defaultWriteTimeout
	}

	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
			WriteTimeout:      timeouts.Write,
		},
	}
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
