package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/shared/runguard"
)

// BatchSource は外部プロデューサーから新しいバッチを取得します。
// 新しいデータがない場合は空のマップを返します（エラーではありません）。
type BatchSource interface {
	NextBatch(ctx context.Context) (map[string]entity.RawBar, error)
}

// CycleResult は1回の取り込みサイクルの結果です。
type CycleResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Records    int           `json:"records"`
	Batch      BatchResult   `json:"batch"`
	Duration   time.Duration `json:"duration_ns"`
}

// IngestCycle はバッチの取得から取り込みまでの1サイクルを実行します。
// 同時に実行できるサイクルは1つだけです。
type IngestCycle struct {
	source BatchSource
	ingest *IngestUsecase
	guard  *runguard.Guard
}

// NewIngestCycle は新しい IngestCycle を作成します。
func NewIngestCycle(source BatchSource, ingest *IngestUsecase) *IngestCycle {
	return &IngestCycle{source: source, ingest: ingest, guard: runguard.New("ingest")}
}

// Run はサイクルを1回実行します。実行中に呼ばれた場合は *runguard.ConcurrentRunError を返し、
// キューイングはしません。
func (c *IngestCycle) Run(ctx context.Context) (res CycleResult, err error) {
	runID := uuid.NewString()
	release, err := c.guard.TryAcquire(runID)
	if err != nil {
		return CycleResult{}, err
	}
	defer release()

	res = CycleResult{RunID: runID, StartedAt: time.Now()}
	defer func() {
		res.FinishedAt = time.Now()
		res.Duration = res.FinishedAt.Sub(res.StartedAt)
	}()

	records, err := c.source.NextBatch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch batch: %w: %w", ErrSourceFailure, err)
	}
	res.Records = len(records)
	if len(records) == 0 {
		slog.Debug("no new records", "run_id", runID)
		return res, nil
	}

	batch, err := c.ingest.IngestBatch(ctx, records)
	res.Batch = batch
	if err != nil {
		return res, err
	}

	slog.Info("ingest cycle finished",
		"run_id", runID,
		"records", len(records),
		"inserted", batch.Inserted,
		"updated", batch.Updated,
		"failed", batch.Failed(),
	)
	return res, nil
}

// Status は実行中の状態を返します。
func (c *IngestCycle) Status() runguard.Status {
	return c.guard.Status()
}
