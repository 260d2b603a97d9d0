package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/integrity/domain/entity"
)

// DefaultScanBatchSize はスキャン時のバッチサイズです。
const DefaultScanBatchSize = 1000

// IntegrityUsecase は保存済みバーの構造検査と削除による修復を行います。
type IntegrityUsecase struct {
	store     BarScanner
	batchSize int
}

// NewIntegrityUsecase は新しい IntegrityUsecase を作成します。
func NewIntegrityUsecase(store BarScanner) *IntegrityUsecase {
	return &IntegrityUsecase{store: store, batchSize: DefaultScanBatchSize}
}

// Scan は全バーを走査し、不変条件に違反するバーごとに1件の Issue を返します。ストアは変更しません。
func (u *IntegrityUsecase) Scan(ctx context.Context) ([]entity.Issue, error) {
	issues := []entity.Issue{}
	scanned := 0
	err := u.store.ScanAll(ctx, u.batchSize, func(bars []candleentity.Bar) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned += len(bars)
		for _, b := range bars {
			if issue, ok := entity.IssueFor(b); ok {
				issues = append(issues, issue)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("integrity scan: %w", err)
	}
	slog.InfoContext(ctx, "integrity scan finished", "scanned", scanned, "issues", len(issues))
	return issues, nil
}

// Repair は Issue ごとに該当バーを削除します。
// 既に存在しない、または既に正しい値に上書きされているバーは already_resolved として扱い、エラーにしません。
// 1件の失敗は他の Issue の処理を止めませんが、ctx の終了時は残りを処理せずに返します。
func (u *IntegrityUsecase) Repair(ctx context.Context, issues []entity.Issue) (entity.RepairReport, error) {
	report := entity.RepairReport{Results: make([]entity.RepairResult, 0, len(issues))}
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := u.repairOne(ctx, issue)
		if res.Status == entity.RepairFailed {
			slog.WarnContext(ctx, "repair failed",
				"symbol", issue.Symbol,
				"timestamp", issue.Time.Format(candleentity.TimestampLayout),
				"error", res.Error)
		}
		report.Add(res)
	}
	slog.InfoContext(ctx, "integrity repair finished",
		"deleted", report.Deleted,
		"already_resolved", report.AlreadyResolved,
		"failed", report.Failed)
	return report, nil
}

func (u *IntegrityUsecase) repairOne(ctx context.Context, issue entity.Issue) entity.RepairResult {
	failed := func(err error) entity.RepairResult {
		return entity.RepairResult{Issue: issue, Status: entity.RepairFailed, Error: err.Error()}
	}
	resolved := entity.RepairResult{Issue: issue, Status: entity.RepairAlreadyResolved}

	if issue.Symbol == "" || issue.Time.IsZero() {
		return failed(errors.New("issue has no symbol or timestamp"))
	}

	bar, found, err := u.store.Get(ctx, issue.Symbol, issue.Time)
	if err != nil {
		return failed(err)
	}
	if !found || len(bar.Violations()) == 0 {
		return resolved
	}

	deleted, err := u.store.Delete(ctx, issue.Symbol, issue.Time)
	if err != nil {
		return failed(err)
	}
	if !deleted {
		return resolved
	}
	return entity.RepairResult{Issue: issue, Status: entity.RepairDeleted}
}
