// Package config はパイプライン全体の設定を環境変数から読み込みます。
// DB・Redis・外部APIなどアダプタ固有の設定は各パッケージの LoadConfig が担当します。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProducerProcess    = "process"
	ProducerTwelveData = "twelvedata"
)

// Config はパイプラインの動作設定です。
type Config struct {
	HTTPAddr string

	IngestSourceFile string
	IngestInterval   time.Duration
	IngestWorkers    int

	ReconcileSymbols         []string
	ReconcileInterval        time.Duration // 0 は手動実行のみ
	ReconcileCallTimeout     time.Duration
	ReconcileCallDelay       time.Duration
	ReconcileInitialLookback time.Duration
	GapThreshold             time.Duration
	NoDataThreshold          time.Duration

	ProducerKind        string
	NotifyChannelPrefix string
	CacheTTL            time.Duration
	JWTSecret           string
}

// Load は環境変数から設定を読み込みます。不正な値はすべてまとめてエラーとして返します。
func Load() (Config, error) {
	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return def
		}
		return d
	}
	num := func(key string, def int) int {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s: invalid positive integer %q", key, v))
			return def
		}
		return n
	}

	cfg := Config{
		HTTPAddr:                 getenv("HTTP_ADDR", ":8080"),
		IngestSourceFile:         getenv("INGEST_SOURCE_FILE", "data/latest_bars.json"),
		IngestInterval:           dur("INGEST_INTERVAL", 60*time.Second),
		IngestWorkers:            num("INGEST_WORKERS", 8),
		ReconcileSymbols:         splitList(os.Getenv("RECONCILE_SYMBOLS")),
		ReconcileInterval:        dur("RECONCILE_INTERVAL", 0),
		ReconcileCallTimeout:     dur("RECONCILE_CALL_TIMEOUT", 30*time.Second),
		ReconcileCallDelay:       dur("RECONCILE_CALL_DELAY", 2*time.Second),
		ReconcileInitialLookback: dur("RECONCILE_INITIAL_LOOKBACK", 24*time.Hour),
		GapThreshold:             dur("GAP_THRESHOLD", 5*time.Minute),
		NoDataThreshold:          dur("NO_DATA_THRESHOLD", 60*time.Minute),
		ProducerKind:             strings.ToLower(getenv("PRODUCER_KIND", ProducerProcess)),
		NotifyChannelPrefix:      getenv("NOTIFY_CHANNEL_PREFIX", "bars"),
		CacheTTL:                 dur("CACHE_TTL", 5*time.Minute),
		JWTSecret:                os.Getenv("JWT_SECRET"),
	}

	switch cfg.ProducerKind {
	case ProducerProcess, ProducerTwelveData:
	default:
		errs = append(errs, fmt.Errorf("PRODUCER_KIND: unsupported producer %q", cfg.ProducerKind))
	}
	if cfg.GapThreshold > cfg.NoDataThreshold {
		errs = append(errs, fmt.Errorf("GAP_THRESHOLD (%s) must not exceed NO_DATA_THRESHOLD (%s)", cfg.GapThreshold, cfg.NoDataThreshold))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// splitList はカンマ区切りの一覧を空要素を除いて分割します。
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
