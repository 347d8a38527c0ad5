package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/pagetree/internal/api"
	"github.com/dgallion1/pagetree/internal/config"
)

// Serve starts the job workers and the HTTP API, and blocks until ctx is
// cancelled or the listener fails. In-flight requests get ten seconds to
// finish after cancellation.
func (a *App) Serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	a.Orchestrator.Start()

	srv := api.NewServer(a.Orchestrator, a.Store, a.Reasoner, a.LLM, log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous generation and queries run long
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting pagetree", "port", cfg.Port, "llm_provider", cfg.LLMProvider, "model", a.LLM.Model())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
