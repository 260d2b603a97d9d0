package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/integrity/domain/entity"
	"candle_pipeline/internal/shared/runguard"
)

const (
	DefaultCallTimeout     = 30 * time.Second
	DefaultCallDelay       = 2 * time.Second
	DefaultInitialLookback = 24 * time.Hour
)

// ReconcileConfig は照合の動作設定です。
type ReconcileConfig struct {
	Thresholds      entity.Thresholds
	CallTimeout     time.Duration // 外部呼び出し1回あたりの上限
	InitialLookback time.Duration // ストアが空の銘柄の補完範囲
	Symbols         []string      // 空ならストアの全銘柄
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	if c.Thresholds == (entity.Thresholds{}) {
		c.Thresholds = entity.DefaultThresholds
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = DefaultInitialLookback
	}
	return c
}

// ReconcileStatus は実行状態と直近の結果です。
type ReconcileStatus struct {
	runguard.Status
	Last *entity.Summary `json:"last,omitempty"`
}

// ReconcileUsecase はストアの最新バーと上流の最新時刻を比較し、欠損を補完します。
// プロセス内で同時に1実行のみ許可します。
type ReconcileUsecase struct {
	store    LatestReader
	producer MarketProducer
	ingester RecordIngester
	pacer    Pacer
	cfg      ReconcileConfig
	guard    *runguard.Guard
	results  SummaryStore

	mu   sync.Mutex
	last *entity.Summary
	wg   sync.WaitGroup
}

// NewReconcileUsecase は新しい ReconcileUsecase を作成します。pacer が nil の場合は間隔を空けません。
func NewReconcileUsecase(store LatestReader, producer MarketProducer, ingester RecordIngester, pacer Pacer, cfg ReconcileConfig) *ReconcileUsecase {
	return &ReconcileUsecase{
		store:    store,
		producer: producer,
		ingester: ingester,
		pacer:    pacer,
		cfg:      cfg.withDefaults(),
		guard:    runguard.New("reconcile"),
	}
}

// UseSummaryStore は結果の保存先を設定し、保存済みの直近結果を読み込みます。
// 読み込みに失敗しても保存先は設定されます。
func (u *ReconcileUsecase) UseSummaryStore(ctx context.Context, store SummaryStore) error {
	u.results = store
	last, err := store.LastSummary(ctx)
	if err != nil {
		return err
	}
	if last != nil {
		u.mu.Lock()
		u.last = last
		u.mu.Unlock()
	}
	return nil
}

// Run は照合を同期的に実行します。実行中なら *runguard.ConcurrentRunError を返します。
// 返るエラーはストア障害による中断のみで、銘柄単位の失敗は Summary に集計されます。
func (u *ReconcileUsecase) Run(ctx context.Context, symbols []string) (entity.Summary, error) {
	runID := uuid.NewString()
	release, err := u.guard.TryAcquire(runID)
	if err != nil {
		return entity.Summary{}, err
	}
	defer release()
	return u.execute(ctx, runID, symbols)
}

// Start は照合をバックグラウンドで開始し、実行IDを返します。
// 実行はリクエストのキャンセルから切り離されます。
func (u *ReconcileUsecase) Start(ctx context.Context, symbols []string) (string, error) {
	runID := uuid.NewString()
	release, err := u.guard.TryAcquire(runID)
	if err != nil {
		return "", err
	}

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer release()
		if _, err := u.execute(context.WithoutCancel(ctx), runID, symbols); err != nil {
			slog.Error("reconcile run aborted", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Wait はバックグラウンド実行の終了を待ちます。
func (u *ReconcileUsecase) Wait() {
	u.wg.Wait()
}

// Status は実行中かどうかと直近の Summary を返します。
func (u *ReconcileUsecase) Status() ReconcileStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	st := ReconcileStatus{Status: u.guard.Status()}
	if u.last != nil {
		last := *u.last
		st.Last = &last
	}
	return st
}

func (u *ReconcileUsecase) execute(ctx context.Context, runID string, symbols []string) (sum entity.Summary, err error) {
	sum = entity.Summary{RunID: runID, StartedAt: time.Now(), Symbols: []entity.SymbolOutcome{}}
	defer func() {
		sum.FinishedAt = time.Now()
		if err != nil {
			sum.Aborted = err.Error()
		}
		u.mu.Lock()
		last := sum
		u.last = &last
		u.mu.Unlock()
		if u.results != nil {
			if serr := u.results.SaveSummary(context.WithoutCancel(ctx), sum); serr != nil {
				slog.WarnContext(ctx, "failed to save reconcile summary", "run_id", runID, "error", serr)
			}
		}
		slog.InfoContext(ctx, "reconcile run finished",
			"run_id", runID,
			"outcome", sum.Outcome(),
			"checked", sum.Checked,
			"gaps", sum.GapsFound,
			"filled", sum.Filled,
			"failed", sum.Failed)
	}()

	symbols, err = u.resolveSymbols(ctx, symbols)
	if err != nil {
		return sum, err
	}
	slog.InfoContext(ctx, "reconcile run started", "run_id", runID, "symbols", len(symbols))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		outcome, err := u.reconcileSymbol(ctx, symbol)
		if err != nil {
			return sum, err
		}
		if !outcome.Success {
			slog.WarnContext(ctx, "reconcile symbol failed", "run_id", runID, "symbol", symbol, "error", outcome.Error)
		}
		sum.Add(outcome)
	}
	return sum, nil
}

func (u *ReconcileUsecase) resolveSymbols(ctx context.Context, symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		symbols = u.cfg.Symbols
	}
	if len(symbols) == 0 {
		stored, err := u.store.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
		symbols = stored
	}

	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = candleentity.NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// reconcileSymbol は1銘柄を照合します。外部呼び出しの失敗は outcome に記録し、
// ストア障害のみエラーとして返します。
func (u *ReconcileUsecase) reconcileSymbol(ctx context.Context, symbol string) (entity.SymbolOutcome, error) {
	out := entity.SymbolOutcome{Symbol: symbol}
	fail := func(err error) (entity.SymbolOutcome, error) {
		out.Error = err.Error()
		return out, nil
	}

	var storeLatest *time.Time
	latest, found, err := u.store.Latest(ctx, symbol)
	if err != nil {
		return out, fmt.Errorf("latest %s: %w", symbol, err)
	}
	if found {
		t := latest.Time
		storeLatest = &t
		out.StoreLatest = &t
	}

	oracleLatest, err := u.callLatest(ctx, symbol)
	if err != nil {
		return fail(err)
	}
	out.OracleLatest = &oracleLatest

	out.Status = entity.ClassifyGap(storeLatest, oracleLatest, u.cfg.Thresholds)
	if !out.Status.NeedsBackfill() {
		out.Success = true
		return out, nil
	}

	from := oracleLatest.Add(-u.cfg.InitialLookback)
	if storeLatest != nil {
		from = *storeLatest
	}
	records, err := u.callBackfill(ctx, symbol, from, oracleLatest)
	if err != nil {
		return fail(err)
	}
	records = withinWindow(records, from, oracleLatest)
	out.Collected = len(records)

	res, err := u.ingester.IngestRecords(ctx, symbol, records)
	if err != nil {
		return out, fmt.Errorf("ingest backfill %s: %w", symbol, err)
	}
	out.Inserted = res.Inserted
	out.Updated = res.Updated
	out.Rejected = res.Failed()
	out.Success = true
	return out, nil
}

func (u *ReconcileUsecase) callLatest(ctx context.Context, symbol string) (time.Time, error) {
	if err := u.pace(ctx); err != nil {
		return time.Time{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()

	ts, err := u.producer.LatestTimestamp(callCtx, symbol)
	if err != nil {
		return time.Time{}, asExternal(callCtx, "check latest", err)
	}
	if ts == nil {
		return time.Time{}, ErrNoUpstreamData
	}
	return candleentity.NormalizeTime(*ts), nil
}

func (u *ReconcileUsecase) callBackfill(ctx context.Context, symbol string, from, to time.Time) ([]candleentity.RawBar, error) {
	if err := u.pace(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()

	records, err := u.producer.Backfill(callCtx, symbol, from, to)
	if err != nil {
		return nil, asExternal(callCtx, "backfill", err)
	}
	return records, nil
}

func (u *ReconcileUsecase) pace(ctx context.Context) error {
	if u.pacer == nil {
		return nil
	}
	return u.pacer.Wait(ctx)
}

// asExternal は外部呼び出しのエラーを ErrExternalTimeout / ErrExternalFailure に分類します。
func asExternal(callCtx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrExternalTimeout), errors.Is(err, ErrExternalFailure):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, ErrExternalTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrExternalFailure, err)
	}
}

// withinWindow は (from, to] に含まれるレコードだけを残します。
// 時刻を解釈できないレコードは取り込み側でエラーとして報告させるため残します。
func withinWindow(records []candleentity.RawBar, from, to time.Time) []candleentity.RawBar {
	out := make([]candleentity.RawBar, 0, len(records))
	for _, r := range records {
		if r.Timestamp == nil {
			out = append(out, r)
			continue
		}
		ts, err := time.Parse(candleentity.TimestampLayout, strings.TrimSpace(*r.Timestamp))
		if err != nil {
			out = append(out, r)
			continue
		}
		ts = candleentity.NormalizeTime(ts)
		if ts.After(from) && !ts.After(to) {
			out = append(out, r)
		}
	}
	return out
}
