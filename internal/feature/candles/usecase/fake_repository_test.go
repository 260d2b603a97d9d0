package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/usecase"
)

// ErrDB はモックと期待値の間で共有されるセンチネルエラーです。
var ErrDB = errors.New("database error")

// fakeCandleRepository はメモリ上で動作するCandleRepositoryのテスト実装です。
// UpsertFunc が設定されている場合はそちらを優先します。
type fakeCandleRepository struct {
	mu   sync.Mutex
	bars map[string]entity.Bar

	UpsertFunc  func(ctx context.Context, bar entity.Bar) (usecase.UpsertResult, error)
	UpsertCalls int
	RangeCalls  int
}

var _ usecase.CandleRepository = (*fakeCandleRepository)(nil)

func newFakeRepo(seed ...entity.Bar) *fakeCandleRepository {
	r := &fakeCandleRepository{bars: map[string]entity.Bar{}}
	for _, b := range seed {
		r.bars[b.Key()] = b
	}
	return r
}

func (r *fakeCandleRepository) Upsert(ctx context.Context, bar entity.Bar) (usecase.UpsertResult, error) {
	r.mu.Lock()
	r.UpsertCalls++
	fn := r.UpsertFunc
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, bar)
	}
	if err := bar.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.bars[bar.Key()]
	r.bars[bar.Key()] = bar
	if exists {
		return usecase.UpsertUpdated, nil
	}
	return usecase.UpsertInserted, nil
}

func (r *fakeCandleRepository) Get(ctx context.Context, symbol string, ts time.Time) (entity.Bar, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bars[entity.Bar{Symbol: symbol, Time: ts}.Key()]
	return b, ok, nil
}

func (r *fakeCandleRepository) Range(ctx context.Context, symbol string, from, to time.Time) ([]entity.Bar, error) {
	r.mu.Lock()
	r.RangeCalls++
	r.mu.Unlock()
	var out []entity.Bar
	for _, b := range r.sorted() {
		if b.Symbol == symbol && !b.Time.Before(from) && b.Time.Before(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeCandleRepository) Latest(ctx context.Context, symbol string) (entity.Bar, bool, error) {
	var (
		latest entity.Bar
		found  bool
	)
	for _, b := range r.sorted() {
		if b.Symbol == symbol {
			latest, found = b, true
		}
	}
	return latest, found, nil
}

func (r *fakeCandleRepository) All(ctx context.Context, symbol string) ([]entity.Bar, error) {
	var out []entity.Bar
	for _, b := range r.sorted() {
		if b.Symbol == symbol {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeCandleRepository) ScanAll(ctx context.Context, batchSize int, fn func([]entity.Bar) error) error {
	return fn(r.sorted())
}

func (r *fakeCandleRepository) Delete(ctx context.Context, symbol string, ts time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entity.Bar{Symbol: symbol, Time: ts}.Key()
	_, ok := r.bars[key]
	delete(r.bars, key)
	return ok, nil
}

func (r *fakeCandleRepository) Symbols(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, b := range r.sorted() {
		if _, ok := seen[b.Symbol]; !ok {
			seen[b.Symbol] = struct{}{}
			out = append(out, b.Symbol)
		}
	}
	return out, nil
}

func (r *fakeCandleRepository) count(symbol string) int {
	bars, _ := r.All(context.Background(), symbol)
	return len(bars)
}

func (r *fakeCandleRepository) sorted() []entity.Bar {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.Bar, 0, len(r.bars))
	for _, b := range r.bars {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

// mockPublisher は Publisher のモック実装です。
type mockPublisher struct {
	mu          sync.Mutex
	PublishFunc func(ctx context.Context, bar entity.Bar) error
	Published   []entity.Bar
}

func (m *mockPublisher) Publish(ctx context.Context, bar entity.Bar) error {
	m.mu.Lock()
	m.Published = append(m.Published, bar)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, bar)
	}
	return nil
}
