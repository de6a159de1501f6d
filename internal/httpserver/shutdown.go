package httpserver

import (
	"context"
	"time"
)

// DefaultShutdownTimeout is used when no shutdown timeout is configured.
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownWithin drains in-flight requests for at most timeout.
func (s *Server) ShutdownWithin(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
