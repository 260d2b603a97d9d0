package usecase

import (
	"context"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
)

// UpsertResult は Upsert が挿入と更新のどちらだったかを表します。
type UpsertResult int

const (
	UpsertInserted UpsertResult = iota + 1
	UpsertUpdated
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// CandleRepository は (symbol, minute) をキーとする1分足ストアを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
//
// 存在しない銘柄の検索はエラーではなく空の結果を返します。
// ストア自体の障害は ErrStoreUnavailable をラップして返します。
type CandleRepository interface {
	// Upsert は同一キーのバーがあればOHLCVを上書きし、なければ挿入します。
	// 不変条件に違反するバーは *entity.ValidationError で拒否し、ストアは変更しません。
	Upsert(ctx context.Context, bar entity.Bar) (UpsertResult, error)

	// Get は完全一致でバーを取得します。
	Get(ctx context.Context, symbol string, ts time.Time) (entity.Bar, bool, error)

	// Range は [from, to) のバーを時刻の昇順で返します。
	Range(ctx context.Context, symbol string, from, to time.Time) ([]entity.Bar, error)

	// Latest は最も新しいバーを返します。
	Latest(ctx context.Context, symbol string) (entity.Bar, bool, error)

	// All は銘柄の全履歴を昇順で返します。件数に上限がないため大きくなり得ます。
	All(ctx context.Context, symbol string) ([]entity.Bar, error)

	// ScanAll は全銘柄の全バーを batchSize 件ずつ fn に渡します（整合性チェック専用）。
	ScanAll(ctx context.Context, batchSize int, fn func([]entity.Bar) error) error

	// Delete はバーを削除し、削除できたかどうかを返します（整合性修復専用）。
	Delete(ctx context.Context, symbol string, ts time.Time) (bool, error)

	// Symbols はデータが存在する銘柄の一覧を返します。
	Symbols(ctx context.Context) ([]string, error)
}
