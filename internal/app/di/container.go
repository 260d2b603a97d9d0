package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"candle_pipeline/internal/app/config"
	candleadapters "candle_pipeline/internal/feature/candles/adapters"
	candlehandler "candle_pipeline/internal/feature/candles/transport/handler"
	candleusecase "candle_pipeline/internal/feature/candles/usecase"
	integrityentity "candle_pipeline/internal/feature/integrity/domain/entity"
	integrityhandler "candle_pipeline/internal/feature/integrity/transport/handler"
	integrityusecase "candle_pipeline/internal/feature/integrity/usecase"
	symbollisthandler "candle_pipeline/internal/feature/symbollist/transport/handler"
	symbollistusecase "candle_pipeline/internal/feature/symbollist/usecase"
	"candle_pipeline/internal/platform/cache"
	infradb "candle_pipeline/internal/platform/db"
	httphandler "candle_pipeline/internal/platform/http/handler"
	"candle_pipeline/internal/platform/notify"
	"candle_pipeline/internal/platform/producer"
	infraredis "candle_pipeline/internal/platform/redis"
	"candle_pipeline/internal/platform/runstore"
	"candle_pipeline/internal/shared/ratelimiter"
)

// Container holds the wired application components.
type Container struct {
	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client // nil when Redis is not configured

	Store candleusecase.CandleRepository
	Hub   *notify.Hub

	Ingest    *candleusecase.IngestUsecase
	Cycle     *candleusecase.IngestCycle
	Candles   candlehandler.CandlesUsecase
	Integrity *integrityusecase.IntegrityUsecase
	Reconcile *integrityusecase.ReconcileUsecase
}

// Build opens the database (and Redis when configured) and wires every usecase.
// Redis is optional: when it is configured but unreachable the pipeline runs without cache or fan-out.
func Build(ctx context.Context, cfg config.Config) (*Container, error) {
	db, err := infradb.OpenDB(infradb.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	rdb, err := openRedis(ctx)
	if err != nil {
		return nil, err
	}

	market, err := NewMarketProducer(cfg.ProducerKind)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, DB: db, Redis: rdb, Hub: notify.NewHub()}
	c.Store = NewCandleStore(db, rdb, cfg)

	publishers := notify.Multi{c.Hub}
	if rdb != nil {
		publishers = append(publishers, notify.NewRedisPublisher(rdb, cfg.NotifyChannelPrefix))
	}

	c.Ingest = candleusecase.NewIngestUsecase(c.Store, publishers, cfg.IngestWorkers)
	c.Cycle = candleusecase.NewIngestCycle(producer.NewFileSource(cfg.IngestSourceFile), c.Ingest)
	c.Candles = candleusecase.NewCandlesUsecase(c.Store)
	c.Integrity = integrityusecase.NewIntegrityUsecase(c.Store)
	c.Reconcile = integrityusecase.NewReconcileUsecase(
		c.Store,
		market,
		c.Ingest,
		ratelimiter.NewPacer("reconcile", cfg.ReconcileCallDelay),
		integrityusecase.ReconcileConfig{
			Thresholds:      integrityentity.Thresholds{Gap: cfg.GapThreshold, NoData: cfg.NoDataThreshold},
			CallTimeout:     cfg.ReconcileCallTimeout,
			InitialLookback: cfg.ReconcileInitialLookback,
			Symbols:         cfg.ReconcileSymbols,
		},
	)
	if rdb != nil {
		if err := c.Reconcile.UseSummaryStore(ctx, runstore.NewSummaryRedis(rdb, "reconcile", 0)); err != nil {
			slog.Warn("failed to restore last reconcile summary", "error", err)
		}
	}
	return c, nil
}

// NewCandleStore creates the gorm-backed store, decorated with a Redis range cache when rdb is set.
func NewCandleStore(db *gorm.DB, rdb *redis.Client, cfg config.Config) candleusecase.CandleRepository {
	repo := candleadapters.NewCandleRepository(db)
	if rdb == nil {
		return repo
	}
	return cache.NewCachingCandleRepository(rdb, cfg.CacheTTL, repo, "candles")
}

// Readiness returns the dependency checks for /readyz.
func (c *Container) Readiness() []httphandler.Check {
	checks := []httphandler.Check{{
		Name: "database",
		Ping: func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if c.Redis != nil {
		checks = append(checks, httphandler.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() },
		})
	}
	return checks
}

// CandlesHandler creates the public candle query handler.
func (c *Container) CandlesHandler() *candlehandler.CandlesHandler {
	return candlehandler.NewCandlesHandler(c.Candles)
}

// IngestHandler creates the admin ingest trigger handler.
func (c *Container) IngestHandler() *candlehandler.IngestHandler {
	return candlehandler.NewIngestHandler(c.Cycle)
}

// IntegrityHandler creates the admin integrity and reconcile handler.
func (c *Container) IntegrityHandler() *integrityhandler.IntegrityHandler {
	return integrityhandler.NewIntegrityHandler(c.Integrity, c.Reconcile)
}

// SymbolHandler creates the stored symbol listing handler.
func (c *Container) SymbolHandler() *symbollisthandler.SymbolHandler {
	return symbollisthandler.NewSymbolHandler(symbollistusecase.NewSymbolUsecase(c.Store))
}

// Close waits for background reconcile runs and releases connections.
func (c *Container) Close() error {
	c.Reconcile.Wait()
	c.Hub.Close()

	var errs []error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openRedis(ctx context.Context) (*redis.Client, error) {
	rcfg, err := infraredis.LoadConfig()
	if err != nil {
		return nil, err
	}
	if !rcfg.Enabled() {
		slog.Info("Redis not configured. Running without cache.")
		return nil, nil
	}
	rdb, err := infraredis.NewRedisClient(ctx, rcfg)
	if err != nil {
		slog.Warn("Redis unavailable. Running without cache.", "error", err)
		return nil, nil
	}
	return rdb, nil
}
