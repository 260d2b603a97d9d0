package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	candleadapters "candle_pipeline/internal/feature/candles/adapters"
	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	candleusecase "candle_pipeline/internal/feature/candles/usecase"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bar(symbol string, ts time.Time, o, h, l, c string) candleentity.Bar {
	return candleentity.Bar{Symbol: symbol, Time: ts, Open: d(o), High: d(h), Low: d(l), Close: d(c), Volume: 100}
}

func minute(hh, mm int) time.Time {
	return time.Date(2025, 1, 2, hh, mm, 0, 0, time.UTC)
}

// setupStore はインメモリSQLite上の実ストアを返します。
func setupStore(t *testing.T) (*gorm.DB, candleusecase.CandleRepository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&candleadapters.BarModel{}), "failed to migrate table")
	return db, candleadapters.NewCandleRepository(db)
}

// seedRaw は検証を通さずに行を直接書き込みます。
func seedRaw(t *testing.T, db *gorm.DB, b candleentity.Bar) {
	t.Helper()
	m := candleadapters.BarModel{
		Symbol: b.Symbol, Time: b.Time,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
	}
	require.NoError(t, db.Create(&m).Error, "failed to seed bar")
}

// fakeScanner は BarScanner のエラー経路を再現します。
type fakeScanner struct {
	bars      []candleentity.Bar
	scanErr   error
	getErr    error
	deleteErr map[string]error
	deleted   []string
}

func (f *fakeScanner) ScanAll(_ context.Context, batchSize int, fn func([]candleentity.Bar) error) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	for i := 0; i < len(f.bars); i += batchSize {
		end := min(i+batchSize, len(f.bars))
		if err := fn(f.bars[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeScanner) Get(_ context.Context, symbol string, ts time.Time) (candleentity.Bar, bool, error) {
	if f.getErr != nil {
		return candleentity.Bar{}, false, f.getErr
	}
	for _, b := range f.bars {
		if b.Symbol == symbol && b.Time.Equal(ts) {
			return b, true, nil
		}
	}
	return candleentity.Bar{}, false, nil
}

func (f *fakeScanner) Delete(_ context.Context, symbol string, ts time.Time) (bool, error) {
	if err := f.deleteErr[symbol]; err != nil {
		return false, err
	}
	f.deleted = append(f.deleted, symbol)
	return true, nil
}

// fakeLatestReader は LatestReader のテスト用実装です。
type fakeLatestReader struct {
	latest     map[string]time.Time
	latestErr  error
	symbols    []string
	symbolsErr error
}

func (f *fakeLatestReader) Latest(_ context.Context, symbol string) (candleentity.Bar, bool, error) {
	if f.latestErr != nil {
		return candleentity.Bar{}, false, f.latestErr
	}
	ts, ok := f.latest[symbol]
	if !ok {
		return candleentity.Bar{}, false, nil
	}
	return bar(symbol, ts, "1", "1", "1", "1"), true, nil
}

func (f *fakeLatestReader) Symbols(context.Context) ([]string, error) {
	if f.symbolsErr != nil {
		return nil, f.symbolsErr
	}
	out := append([]string(nil), f.symbols...)
	sort.Strings(out)
	return out, nil
}

type backfillCall struct {
	Symbol     string
	Start, End time.Time
}

// fakeProducer は MarketProducer のテスト用実装です。
type fakeProducer struct {
	mu          sync.Mutex
	latest      map[string]*time.Time
	latestErr   map[string]error
	backfill    map[string][]candleentity.RawBar
	backfillErr map[string]error
	block       chan struct{}
	calls       []backfillCall
}

func (f *fakeProducer) LatestTimestamp(ctx context.Context, symbol string) (*time.Time, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.latestErr[symbol]; err != nil {
		return nil, err
	}
	return f.latest[symbol], nil
}

func (f *fakeProducer) Backfill(_ context.Context, symbol string, start, end time.Time) ([]candleentity.RawBar, error) {
	f.mu.Lock()
	f.calls = append(f.calls, backfillCall{Symbol: symbol, Start: start, End: end})
	f.mu.Unlock()
	if err := f.backfillErr[symbol]; err != nil {
		return nil, err
	}
	return f.backfill[symbol], nil
}

func (f *fakeProducer) backfillCalls() []backfillCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backfillCall(nil), f.calls...)
}

// countingPacer は Wait の呼び出し回数を数えます。
type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

// fakeIngester は受け取ったレコードをすべて挿入扱いにします。
type fakeIngester struct {
	mu       sync.Mutex
	received map[string]int
}

func (f *fakeIngester) IngestRecords(_ context.Context, symbol string, records []candleentity.RawBar) (candleusecase.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.received == nil {
		f.received = map[string]int{}
	}
	f.received[symbol] += len(records)
	return candleusecase.BatchResult{Inserted: len(records)}, nil
}
