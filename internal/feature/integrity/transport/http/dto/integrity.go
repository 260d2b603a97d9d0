// Package dto defines data transfer objects for the integrity admin API.
package dto

import (
	"candle_pipeline/internal/feature/integrity/domain/entity"
	"candle_pipeline/internal/shared/runguard"
)

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// ScanResponse は POST /admin/integrity/scan のレスポンスです。
type ScanResponse struct {
	Count  int            `json:"count"`
	Issues []entity.Issue `json:"issues"`
}

// RepairRequest は POST /admin/integrity/repair のリクエストです。
// Issues が空の場合はスキャンした結果をそのまま修復します。
type RepairRequest struct {
	Issues []entity.Issue `json:"issues"`
}

// ReconcileRequest は POST /admin/reconcile のリクエストです。空なら設定済みの銘柄が対象です。
type ReconcileRequest struct {
	Symbols []string `json:"symbols"`
}

// ReconcileAccepted は照合を受け付けたときのレスポンスです。
type ReconcileAccepted struct {
	RunID     string `json:"run_id"`
	StatusURL string `json:"status_url"`
}

// ConflictResponse は実行中のため要求を拒否したときのレスポンスです。
type ConflictResponse struct {
	Error   string          `json:"error"`
	Current runguard.Status `json:"current"`
}
