package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer is the part of *http.Server the service needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an HTTP server to suture.Service. Canceling the serve
// context triggers a graceful shutdown bounded by shutdownTimeout.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. A non-positive timeout means 30 seconds.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPService) String() string {
	return "http-server"
}

// FuncService turns a function into a named suture.Service.
type FuncService struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncService names fn for supervisor logs.
func NewFuncService(name string, fn func(ctx context.Context) error) *FuncService {
	return &FuncService{name: name, fn: fn}
}

func (f *FuncService) Serve(ctx context.Context) error { return f.fn(ctx) }

func (f *FuncService) String() string { return f.name }
