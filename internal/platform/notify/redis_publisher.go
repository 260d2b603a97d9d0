// Package notify delivers accepted bars to subscribers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/usecase"
)

// DefaultChannelPrefix はチャンネル名 <prefix>:<SYMBOL> の既定プレフィックスです。
const DefaultChannelPrefix = "bars"

// RedisPublisher は受理されたバーを Redis Pub/Sub に JSON で配信します。
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

var _ usecase.Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher は RedisPublisher を生成します。prefix が空の場合は "bars" を使います。
func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel は銘柄ごとのチャンネル名を返します。
func (p *RedisPublisher) Channel(symbol string) string {
	return p.prefix + ":" + entity.NormalizeSymbol(symbol)
}

func (p *RedisPublisher) Publish(ctx context.Context, bar entity.Bar) error {
	payload, err := json.Marshal(bar)
	if err != nil {
		return fmt.Errorf("marshal bar: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.Channel(bar.Symbol), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", bar.Symbol, err)
	}
	return nil
}

// Multi は複数の Publisher に順に配信します。nil 要素は無視します。
type Multi []usecase.Publisher

var _ usecase.Publisher = Multi(nil)

// Publish はすべての配信先へ送信し、失敗をまとめて返します。1件の失敗で他を止めません。
func (m Multi) Publish(ctx context.Context, bar entity.Bar) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, bar); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
