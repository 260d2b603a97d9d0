package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"candle_pipeline/internal/app/config"
	"candle_pipeline/internal/app/di"
	"candle_pipeline/internal/feature/integrity/domain/entity"
	"candle_pipeline/internal/platform/logger"
)

func main() {
	scan := flag.Bool("scan", false, "scan stored bars for OHLC violations instead of reconciling")
	repair := flag.Bool("repair", false, "delete the bars reported by -scan")
	symbols := flag.String("symbols", "", "comma separated symbols (default RECONCILE_SYMBOLS, then every stored symbol)")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}
	logger.Setup("candle-reconcile")

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

	var code int
	if *scan || *repair {
		code = runIntegrity(ctx, c, *repair)
	} else {
		code = runReconcile(ctx, c, splitSymbols(*symbols))
	}

	if err := c.Close(); err != nil {
		slog.Error("failed to close resources", "error", err)
	}
	stop()
	os.Exit(code)
}

func runIntegrity(ctx context.Context, c *di.Container, repair bool) int {
	issues, err := c.Integrity.Scan(ctx)
	if err != nil {
		slog.Error("integrity scan failed", "error", err)
		return 1
	}
	if !repair {
		printJSON(map[string]any{"count": len(issues), "issues": issues})
		return 0
	}

	report, err := c.Integrity.Repair(ctx, issues)
	if err != nil {
		slog.Error("integrity repair failed", "error", err)
		return 1
	}
	printJSON(report)
	if report.Failed > 0 {
		return 1
	}
	return 0
}

func runReconcile(ctx context.Context, c *di.Container, symbols []string) int {
	sum, err := c.Reconcile.Run(ctx, symbols)
	printJSON(sum)
	if err != nil {
		slog.Error("reconcile aborted", "run_id", sum.RunID, "error", err)
		return 1
	}
	if sum.Outcome() == entity.OutcomeFailed {
		return 1
	}
	return 0
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
