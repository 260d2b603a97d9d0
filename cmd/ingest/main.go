package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"candle_pipeline/internal/app/config"
	"candle_pipeline/internal/app/di"
	"candle_pipeline/internal/platform/logger"
)

func main() {
	watch := flag.Bool("watch", false, "keep polling the source file at INGEST_INTERVAL")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	logger.Setup("candle-ingest")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := di.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Error("failed to close resources", "error", err)
		}
	}()

	if !*watch {
		if err := runOnce(ctx, c); err != nil {
			stop()
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(cfg.IngestInterval)
	defer ticker.Stop()
	for {
		_ = runOnce(ctx, c)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func runOnce(ctx context.Context, c *di.Container) error {
	res, err := c.Cycle.Run(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Error("ingest failed", "run_id", res.RunID, "error", err)
		}
		return err
	}
	slog.Info("ingest ok",
		"run_id", res.RunID,
		"records", res.Records,
		"inserted", res.Batch.Inserted,
		"updated", res.Batch.Updated,
		"failed", res.Batch.Failed())
	return nil
}
