package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP API and the dataset reloaders until ctx is done or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:         a.Config.HTTP.Address,
		Handler:      a.Handler(),
		ReadTimeout:  a.Config.HTTP.ReadTimeout,
		WriteTimeout: a.Config.HTTP.WriteTimeout,
		IdleTimeout:  a.Config.HTTP.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloadersDone := make(chan error, 1)
	go func() {
		reloadersDone <- a.RunReloaders(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("starting api server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var (
		runErr       error
		reloadersRun = true
	)
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case runErr = <-serveErr:
			if runErr != nil {
				a.Logger.Error("api server failed", slog.Any("error", runErr))
			}
			break wait
		case err := <-reloadersDone:
			reloadersRun = false
			if err != nil {
				a.Logger.Error("dataset reloaders failed", slog.Any("error", err))
				runErr = err
				break wait
			}
			reloadersDone = nil
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	a.Logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		if runErr == nil {
			runErr = err
		}
	}
	if reloadersRun {
		<-reloadersDone
	}
	return runErr
}
