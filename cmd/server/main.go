package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"candle_pipeline/internal/app/config"
	"candle_pipeline/internal/app/di"
	"candle_pipeline/internal/app/router"
	jwtmw "candle_pipeline/internal/platform/jwt"
	"candle_pipeline/internal/platform/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .envを読み込む
	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	logger.Setup("candle-server")

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

	sched := di.NewScheduler(c)
	sched.Start(ctx)

	r := router.NewRouter(router.Handlers{
		Candles:   c.CandlesHandler(),
		Ingest:    c.IngestHandler(),
		Integrity: c.IntegrityHandler(),
		Symbols:   c.SymbolHandler(),
		Stream:    c.Hub.Handler,
		Readiness: c.Readiness(),
		Jobs:      sched.Jobs,
	})

	// JWT_SECRETチェック（管理APIはすべて拒否される）
	if os.Getenv(jwtmw.EnvKeyJWTSecret) == "" {
		slog.Warn("JWT_SECRET is not set. Admin endpoints will reject every request.")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	sched.Stop()
}
