// Package runstore は照合実行の結果をRedisに保存し、プロセス間で共有します。
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"candle_pipeline/internal/feature/integrity/domain/entity"
	"candle_pipeline/internal/feature/integrity/usecase"
)

// DefaultTTL は保存した結果の保持期間です。
const DefaultTTL = 7 * 24 * time.Hour

// SummaryRedis は usecase.SummaryStore のRedis実装です。
type SummaryRedis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ usecase.SummaryStore = (*SummaryRedis)(nil)

// NewSummaryRedis は新しい SummaryRedis を作成します。prefix が空なら "reconcile" を使います。
func NewSummaryRedis(client *redis.Client, prefix string, ttl time.Duration) *SummaryRedis {
	if prefix == "" {
		prefix = "reconcile"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SummaryRedis{client: client, prefix: prefix, ttl: ttl}
}

// lastKey は直近の結果を指すキーです。
func (r *SummaryRedis) lastKey() string {
	return fmt.Sprintf("%s:last", r.prefix)
}

// runKey は実行IDごとの結果のキーです。
func (r *SummaryRedis) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", r.prefix, runID)
}

// SaveSummary は結果を実行IDのキーと直近のキーの両方に保存します。
func (r *SummaryRedis) SaveSummary(ctx context.Context, sum entity.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.runKey(sum.RunID), data, r.ttl)
	pipe.Set(ctx, r.lastKey(), data, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save summary %s: %w", sum.RunID, err)
	}
	return nil
}

// LastSummary は直近の結果を返します。保存されていなければ nil です。
func (r *SummaryRedis) LastSummary(ctx context.Context) (*entity.Summary, error) {
	return r.load(ctx, r.lastKey())
}

// Summary は実行IDを指定して結果を返します。保存されていなければ nil です。
func (r *SummaryRedis) Summary(ctx context.Context, runID string) (*entity.Summary, error) {
	return r.load(ctx, r.runKey(runID))
}

func (r *SummaryRedis) load(ctx context.Context, key string) (*entity.Summary, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var sum entity.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &sum, nil
}
