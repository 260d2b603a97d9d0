package ratelimiter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterInterface は、外部呼び出しの頻度を制限するインターフェースです。
type RateLimiterInterface interface {
	Wait(ctx context.Context) error
}

// RateLimiter は interval あたり limit 回までに呼び出しを平準化します。
type RateLimiter struct {
	name    string
	limiter *rate.Limiter
}

var _ RateLimiterInterface = (*RateLimiter)(nil)

// NewRateLimiter は新しいRateLimiterのインスタンスを生成します。
// limit または interval が0以下の場合は制限しません。
func NewRateLimiter(name string, limit int, interval time.Duration) *RateLimiter {
	r := rate.Inf
	if limit > 0 && interval > 0 {
		r = rate.Limit(float64(limit) / interval.Seconds())
	}
	return &RateLimiter{name: name, limiter: rate.NewLimiter(r, 1)}
}

// NewPacer は呼び出し間に最低 delay の間隔を空けるRateLimiterを生成します。
func NewPacer(name string, delay time.Duration) *RateLimiter {
	return NewRateLimiter(name, 1, delay)
}

// Wait は次の呼び出しが許可されるまで待機します。ctx が先に終了した場合はそのエラーを返します。
func (rl *RateLimiter) Wait(ctx context.Context) error {
	res := rl.limiter.Reserve()
	delay := res.Delay()
	if delay == 0 {
		return nil
	}
	slog.DebugContext(ctx, "rate limit: waiting", "limiter", rl.name, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	}
}
