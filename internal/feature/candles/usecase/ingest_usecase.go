package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"candle_pipeline/internal/feature/candles/domain/entity"
)

// DefaultIngestWorkers はバッチ内で並列に処理する銘柄数の既定値です。
const DefaultIngestWorkers = 8

// Publisher は受理されたバーを購読者へ通知します（ベストエフォート）。
type Publisher interface {
	Publish(ctx context.Context, bar entity.Bar) error
}

// RecordError は1レコードの取り込み失敗です。バッチ全体は中断しません。
type RecordError struct {
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp,omitempty"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// BatchResult は1バッチの取り込み結果の集計です。
type BatchResult struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Errors   []RecordError `json:"errors"`
	Accepted []entity.Bar  `json:"-"`
}

// Failed は失敗したレコード数を返します。
func (r BatchResult) Failed() int { return len(r.Errors) }

// Total は処理したレコード数を返します。
func (r BatchResult) Total() int { return r.Inserted + r.Updated + len(r.Errors) }

func (r *BatchResult) merge(o BatchResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Errors = append(r.Errors, o.Errors...)
	r.Accepted = append(r.Accepted, o.Accepted...)
}

// IngestUsecase は外部プロデューサーが生成したレコードを検証・パースし、ストアへ Upsert します。
// ストアへの書き込み経路はこのユースケース（と整合性修復の削除）だけです。
type IngestUsecase struct {
	candle    CandleRepository
	publisher Publisher
	workers   int
}

// NewIngestUsecase は新しい IngestUsecase を作成します。publisher は nil でも構いません。
func NewIngestUsecase(candle CandleRepository, publisher Publisher, workers int) *IngestUsecase {
	if workers <= 0 {
		workers = DefaultIngestWorkers
	}
	return &IngestUsecase{candle: candle, publisher: publisher, workers: workers}
}

// IngestBatch は銘柄ごとのレコードをまとめて取り込みます。
// 各レコードは独立して処理・確定され、失敗はレコード単位で BatchResult.Errors に集計されます。
// ストア自体の障害のみバッチを中断し、エラーとして返します。
func (iu *IngestUsecase) IngestBatch(ctx context.Context, records map[string]entity.RawBar) (BatchResult, error) {
	var (
		mu  sync.Mutex
		res BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(iu.workers)
	for symbol, raw := range records {
		symbol, raw := symbol, raw
		g.Go(func() error {
			one, err := iu.ingestRecord(gctx, symbol, raw)
			if err != nil {
				return err
			}
			mu.Lock()
			res.merge(one)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sortErrors(res.Errors)
	return res, nil
}

// IngestRecords は1銘柄の複数レコード（バックフィルの応答など）を同じ経路で取り込みます。
func (iu *IngestUsecase) IngestRecords(ctx context.Context, symbol string, records []entity.RawBar) (BatchResult, error) {
	var res BatchResult
	for _, raw := range records {
		one, err := iu.ingestRecord(ctx, symbol, raw)
		if err != nil {
			return res, err
		}
		res.merge(one)
	}
	return res, nil
}

// ingestRecord は1レコードを取り込みます。返すエラーはバッチを中断すべきもののみです。
func (iu *IngestUsecase) ingestRecord(ctx context.Context, symbol string, raw entity.RawBar) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	bar, err := raw.ToBar(symbol)
	if err != nil {
		res.Errors = append(res.Errors, recordError(symbol, raw, err))
		slog.Warn("rejected record", "symbol", symbol, "error", err)
		return res, nil
	}

	result, err := iu.candle.Upsert(ctx, bar)
	if err != nil {
		if errors.Is(err, entity.ErrValidation) {
			res.Errors = append(res.Errors, recordError(bar.Symbol, raw, err))
			slog.Warn("rejected bar", "symbol", bar.Symbol, "timestamp", bar.Time, "error", err)
			return res, nil
		}
		return res, fmt.Errorf("upsert %s: %w", bar.Key(), err)
	}

	switch result {
	case UpsertInserted:
		res.Inserted++
	case UpsertUpdated:
		res.Updated++
	}
	res.Accepted = append(res.Accepted, bar)

	// 通知の失敗はストアへの書き込みを取り消さない
	if iu.publisher != nil {
		if err := iu.publisher.Publish(ctx, bar); err != nil {
			slog.Warn("failed to publish bar", "symbol", bar.Symbol, "timestamp", bar.Time, "error", err)
		}
	}
	return res, nil
}

func recordError(symbol string, raw entity.RawBar, err error) RecordError {
	re := RecordError{Symbol: entity.NormalizeSymbol(symbol), Reason: err.Error(), Err: err}
	if raw.Timestamp != nil {
		re.Timestamp = *raw.Timestamp
	}
	return re
}

func sortErrors(errs []RecordError) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Symbol != errs[j].Symbol {
			return errs[i].Symbol < errs[j].Symbol
		}
		return errs[i].Timestamp < errs[j].Timestamp
	})
}
