package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/usecase"
)

// DefaultScanBatchSize is used by ScanAll when the caller passes a non-positive batch size.
const DefaultScanBatchSize = 1000

type candleGorm struct {
	db    *gorm.DB
	locks keyLocks
}

var _ usecase.CandleRepository = (*candleGorm)(nil)

// NewCandleRepository はgormをバックエンドとするCandleRepositoryを生成します。
func NewCandleRepository(db *gorm.DB) *candleGorm {
	return &candleGorm{db: db}
}

// BarModel は bars テーブルの行です。(symbol, ts) に一意インデックスを持ちます。
type BarModel struct {
	ID     uint            `gorm:"primaryKey"`
	Symbol string          `gorm:"size:16;not null;uniqueIndex:bar_sym_ts,priority:1"`
	Time   time.Time       `gorm:"column:ts;not null;uniqueIndex:bar_sym_ts,priority:2"`
	Open   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	High   decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Low    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Close  decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	Volume int64           `gorm:"not null;default:0"`
}

func (BarModel) TableName() string {
	return "bars"
}

func toModel(e entity.Bar) BarModel {
	return BarModel{
		Symbol: e.Symbol,
		Time:   entity.NormalizeTime(e.Time),
		Open:   e.Open,
		High:   e.High,
		Low:    e.Low,
		Close:  e.Close,
		Volume: e.Volume,
	}
}

func toEntity(m BarModel) entity.Bar {
	return entity.Bar{
		Symbol: m.Symbol,
		Time:   entity.NormalizeTime(m.Time),
		Open:   m.Open,
		High:   m.High,
		Low:    m.Low,
		Close:  m.Close,
		Volume: m.Volume,
	}
}

func toEntities(rows []BarModel) []entity.Bar {
	out := make([]entity.Bar, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, usecase.ErrStoreUnavailable, err)
}

// Upsert は不変条件を検証したうえで、(symbol, ts) の衝突時にOHLCVを上書きします。
// 同一銘柄への書き込みはプロセス内で直列化され、1つのトランザクション内で完結します。
func (r *candleGorm) Upsert(ctx context.Context, bar entity.Bar) (usecase.UpsertResult, error) {
	bar.Symbol = entity.NormalizeSymbol(bar.Symbol)
	bar.Time = entity.NormalizeTime(bar.Time)
	if err := bar.Validate(); err != nil {
		return 0, err
	}

	unlock := r.locks.lock(bar.Symbol)
	defer unlock()

	m := toModel(bar)
	result := usecase.UpsertInserted
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&BarModel{}).
			Where("symbol = ? AND ts = ?", m.Symbol, m.Time).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			result = usecase.UpsertUpdated
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "ts"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(&m).Error
	})
	if err != nil {
		return 0, storeErr("upsert", err)
	}
	return result, nil
}

func (r *candleGorm) Get(ctx context.Context, symbol string, ts time.Time) (entity.Bar, bool, error) {
	var m BarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND ts = ?", entity.NormalizeSymbol(symbol), entity.NormalizeTime(ts)).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.Bar{}, false, nil
	}
	if err != nil {
		return entity.Bar{}, false, storeErr("get", err)
	}
	return toEntity(m), true, nil
}

// Range は [from, to) の範囲を昇順で返します。
func (r *candleGorm) Range(ctx context.Context, symbol string, from, to time.Time) ([]entity.Bar, error) {
	var rows []BarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND ts >= ? AND ts < ?", entity.NormalizeSymbol(symbol), entity.NormalizeTime(from), entity.NormalizeTime(to)).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("range", err)
	}
	return toEntities(rows), nil
}

func (r *candleGorm) Latest(ctx context.Context, symbol string) (entity.Bar, bool, error) {
	var rows []BarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ?", entity.NormalizeSymbol(symbol)).
		Order("ts DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return entity.Bar{}, false, storeErr("latest", err)
	}
	if len(rows) == 0 {
		return entity.Bar{}, false, nil
	}
	return toEntity(rows[0]), true, nil
}

// All は銘柄の全履歴を返します。件数に上限がないため、大きな銘柄では Range を使ってください。
func (r *candleGorm) All(ctx context.Context, symbol string) ([]entity.Bar, error) {
	var rows []BarModel
	err := r.db.WithContext(ctx).
		Where("symbol = ?", entity.NormalizeSymbol(symbol)).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr("all", err)
	}
	return toEntities(rows), nil
}

// ScanAll は主キー順にバッチ単位で全件を走査します。
func (r *candleGorm) ScanAll(ctx context.Context, batchSize int, fn func([]entity.Bar) error) error {
	if batchSize <= 0 {
		batchSize = DefaultScanBatchSize
	}
	var (
		rows  []BarModel
		cbErr error
	)
	res := r.db.WithContext(ctx).
		Order("id ASC").
		FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
			if err := fn(toEntities(rows)); err != nil {
				cbErr = err
				return err
			}
			return nil
		})
	if cbErr != nil {
		return cbErr
	}
	if res.Error != nil {
		return storeErr("scan", res.Error)
	}
	return nil
}

func (r *candleGorm) Delete(ctx context.Context, symbol string, ts time.Time) (bool, error) {
	symbol = entity.NormalizeSymbol(symbol)
	unlock := r.locks.lock(symbol)
	defer unlock()

	res := r.db.WithContext(ctx).
		Where("symbol = ? AND ts = ?", symbol, entity.NormalizeTime(ts)).
		Delete(&BarModel{})
	if res.Error != nil {
		return false, storeErr("delete", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *candleGorm) Symbols(ctx context.Context) ([]string, error) {
	var out []string
	err := r.db.WithContext(ctx).
		Model(&BarModel{}).
		Distinct("symbol").
		Order("symbol ASC").
		Pluck("symbol", &out).Error
	if err != nil {
		return nil, storeErr("symbols", err)
	}
	return out, nil
}

// keyLocks serializes writers per symbol.
type keyLocks struct {
	m sync.Map // symbol -> *sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	v, _ := k.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
