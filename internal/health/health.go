// Package health exposes the tiny per-process health listener every
// long-running modsentry service carries.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Handler returns an http.Handler answering GET /health with
// {"status":"ok","service":"<service>"}.
func Handler(service string) http.Handler {
	mux := http.NewServeMux()
	body := []byte(fmt.Sprintf(`{"status":"ok","service":%q}`, service))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	return mux
}

// Serve starts the health listener on port in its own goroutine and shuts it
// down when ctx is cancelled. A port <= 0 disables the listener entirely.
func Serve(ctx context.Context, port int, service string) {
	if port <= 0 {
		return
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Handler(service),
	}

	go func() {
		slog.Info("health endpoint listening", "service", service, "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("health listener failed", "service", service, "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}
