package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/insightbot/internal/app"
	"github.com/duckmesh/insightbot/internal/config"
	"github.com/duckmesh/insightbot/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("insightbot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("failed to initialize insightbot", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = application.Close() }()

	if err := application.Serve(ctx); err != nil {
		logger.Error("api server stopped with error", slog.Any("error", err))
		_ = application.Close()
		os.Exit(1)
	}
}
