package usecase

import (
	"context"
	"time"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	candleusecase "candle_pipeline/internal/feature/candles/usecase"
	"candle_pipeline/internal/feature/integrity/domain/entity"
)

// BarScanner は整合性スキャンと修復に必要なストア操作です。
type BarScanner interface {
	ScanAll(ctx context.Context, batchSize int, fn func([]candleentity.Bar) error) error
	Get(ctx context.Context, symbol string, ts time.Time) (candleentity.Bar, bool, error)
	Delete(ctx context.Context, symbol string, ts time.Time) (bool, error)
}

// LatestReader は照合に必要なストア操作です。
type LatestReader interface {
	Latest(ctx context.Context, symbol string) (candleentity.Bar, bool, error)
	Symbols(ctx context.Context) ([]string, error)
}

// MarketProducer は外部プロデューサーへの問い合わせです。
// 実装はタイムアウトを ErrExternalTimeout、その他の失敗を ErrExternalFailure でラップして返します。
type MarketProducer interface {
	// LatestTimestamp は上流が持つ最新のバー時刻を返します。データがなければ nil です。
	LatestTimestamp(ctx context.Context, symbol string) (*time.Time, error)
	// Backfill は [start, end] のバーを取得します。
	Backfill(ctx context.Context, symbol string, start, end time.Time) ([]candleentity.RawBar, error)
}

// RecordIngester は取り込みと同じ Upsert 経路で補完データを書き込みます。
type RecordIngester interface {
	IngestRecords(ctx context.Context, symbol string, records []candleentity.RawBar) (candleusecase.BatchResult, error)
}

// Pacer は連続する外部呼び出しの間隔を空けます。
type Pacer interface {
	Wait(ctx context.Context) error
}

// SummaryStore は照合結果をプロセス外に保存します。
type SummaryStore interface {
	SaveSummary(ctx context.Context, sum entity.Summary) error
	LastSummary(ctx context.Context) (*entity.Summary, error)
}
