package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/askql/askql/internal/demo/driver"
)

func main() {
	cfg, err := driver.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo driver config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := driver.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo driver", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"demo driver started",
		slog.String("api_url", cfg.APIBaseURL),
		slog.String("driver_id", cfg.DriverID),
		slog.Duration("interval", cfg.Interval),
		slog.Int("explain_ratio", cfg.ExplainRatio),
	)

	err = service.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("demo driver stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo driver stopped")
}
