package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const shutdownGrace = 5 * time.Second

// ServerWorker runs the HTTP server under the supervisor, so context
// cancellation drains it like every other worker.
type ServerWorker struct {
	log    *slog.Logger
	server *http.Server
}

func NewServerWorker(log *slog.Logger, addr string, handler http.Handler) *ServerWorker {
	return &ServerWorker{
		log:    log,
		server: &http.Server{Addr: addr, Handler: handler},
	}
}

func (w *ServerWorker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		w.log.Info("HTTP server listening", "addr", w.server.Addr)
		errCh <- w.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	}
}
