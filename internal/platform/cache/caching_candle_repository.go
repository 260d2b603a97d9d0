// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/usecase"
)

// CachingCandleRepository decorates a CandleRepository with Redis caching.
// Only Range results are cached; writes invalidate every cached range of the symbol.
//
// Range keys carry a per-symbol generation that every write increments, so a
// range read that started before a write can only fill a key no later read uses.
type CachingCandleRepository struct {
	inner     usecase.CandleRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

var _ usecase.CandleRepository = (*CachingCandleRepository)(nil)

// NewCachingCandleRepository decorates a CandleRepository with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCachingCandleRepository(rdb *redis.Client, ttl time.Duration, inner usecase.CandleRepository, namespace string) *CachingCandleRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &CachingCandleRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Upsert writes through and invalidates the symbol's cached ranges.
func (c *CachingCandleRepository) Upsert(ctx context.Context, bar entity.Bar) (usecase.UpsertResult, error) {
	res, err := c.inner.Upsert(ctx, bar)
	if err != nil {
		return res, err
	}
	c.invalidate(ctx, bar.Symbol)
	return res, nil
}

// Delete removes through and invalidates the symbol's cached ranges.
func (c *CachingCandleRepository) Delete(ctx context.Context, symbol string, ts time.Time) (bool, error) {
	deleted, err := c.inner.Delete(ctx, symbol, ts)
	if err != nil {
		return deleted, err
	}
	if deleted {
		c.invalidate(ctx, symbol)
	}
	return deleted, nil
}

// Range retrieves bars, checking cache first then falling back to the database.
func (c *CachingCandleRepository) Range(ctx context.Context, symbol string, from, to time.Time) ([]entity.Bar, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil {
		return c.inner.Range(ctx, symbol, from, to)
	}

	gen, err := c.rdb.Get(ctx, genKey(c.namespace, symbol)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "cache generation unavailable", "symbol", symbol, "error", err)
		return c.inner.Range(ctx, symbol, from, to)
	}
	key := rangeKey(c.namespace, symbol, gen, from, to)

	// 1) Check cache
	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Bar
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	// 2) Fallback to database
	out, err := c.inner.Range(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	// 3) Store in cache (best effort)
	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
	}

	return out, nil
}

func (c *CachingCandleRepository) Get(ctx context.Context, symbol string, ts time.Time) (entity.Bar, bool, error) {
	return c.inner.Get(ctx, symbol, ts)
}

func (c *CachingCandleRepository) Latest(ctx context.Context, symbol string) (entity.Bar, bool, error) {
	return c.inner.Latest(ctx, symbol)
}

func (c *CachingCandleRepository) All(ctx context.Context, symbol string) ([]entity.Bar, error) {
	return c.inner.All(ctx, symbol)
}

func (c *CachingCandleRepository) ScanAll(ctx context.Context, batchSize int, fn func([]entity.Bar) error) error {
	return c.inner.ScanAll(ctx, batchSize, fn)
}

func (c *CachingCandleRepository) Symbols(ctx context.Context) ([]string, error) {
	return c.inner.Symbols(ctx)
}

// invalidate drops every cached range of symbol. Failures are logged, not returned.
func (c *CachingCandleRepository) invalidate(ctx context.Context, symbol string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Incr(ctx, genKey(c.namespace, symbol)).Err(); err != nil {
		slog.WarnContext(ctx, "cache generation bump failed", "symbol", symbol, "error", err)
	}
	if err := c.deleteByPattern(ctx, symbolPrefix(c.namespace, symbol)+"*"); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed", "symbol", symbol, "error", err)
	}
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingCandleRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}
