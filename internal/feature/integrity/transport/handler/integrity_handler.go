// Package handler はintegrityフィーチャーの管理用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"candle_pipeline/internal/feature/integrity/domain/entity"
	"candle_pipeline/internal/feature/integrity/transport/http/dto"
	"candle_pipeline/internal/feature/integrity/usecase"
	"candle_pipeline/internal/shared/runguard"
)

const reconcileStatusPath = "/admin/reconcile/status"

// IntegrityUsecase はスキャンと修復のユースケースです。
type IntegrityUsecase interface {
	Scan(ctx context.Context) ([]entity.Issue, error)
	Repair(ctx context.Context, issues []entity.Issue) (entity.RepairReport, error)
}

// Reconciler は照合の非同期実行と状態参照です。
type Reconciler interface {
	Start(ctx context.Context, symbols []string) (string, error)
	Status() usecase.ReconcileStatus
}

// IntegrityHandler は整合性チェックと照合の管理APIを処理します。
type IntegrityHandler struct {
	integrity  IntegrityUsecase
	reconciler Reconciler
}

// NewIntegrityHandler は新しい IntegrityHandler を作成します。
func NewIntegrityHandler(integrity IntegrityUsecase, reconciler Reconciler) *IntegrityHandler {
	return &IntegrityHandler{integrity: integrity, reconciler: reconciler}
}

// Scan は全バーを検査し、違反の一覧を返します。ストアは変更しません。
//
// POST /admin/integrity/scan
func (h *IntegrityHandler) Scan(c *gin.Context) {
	issues, err := h.integrity.Scan(c.Request.Context())
	if err != nil {
		h.internalError(c, "integrity scan failed", err)
		return
	}
	c.JSON(http.StatusOK, dto.ScanResponse{Count: len(issues), Issues: issues})
}

// Repair は指定された Issue を修復します。ボディが空の場合はスキャン結果を修復します。
//
// POST /admin/integrity/repair
func (h *IntegrityHandler) Repair(c *gin.Context) {
	var req dto.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
		return
	}

	issues := req.Issues
	if len(issues) == 0 {
		scanned, err := h.integrity.Scan(c.Request.Context())
		if err != nil {
			h.internalError(c, "integrity scan failed", err)
			return
		}
		issues = scanned
	}

	report, err := h.integrity.Repair(c.Request.Context(), issues)
	if err != nil {
		h.internalError(c, "integrity repair failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// StartReconcile は照合をバックグラウンドで開始し、202 と実行IDを返します。
// 実行中の場合は 409 と実行中の状態を返します。
//
// POST /admin/reconcile
func (h *IntegrityHandler) StartReconcile(c *gin.Context) {
	var req dto.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
		return
	}

	runID, err := h.reconciler.Start(c.Request.Context(), req.Symbols)
	var cre *runguard.ConcurrentRunError
	switch {
	case errors.As(err, &cre):
		c.JSON(http.StatusConflict, dto.ConflictResponse{Error: err.Error(), Current: cre.Current})
	case err != nil:
		h.internalError(c, "reconcile start failed", err)
	default:
		c.JSON(http.StatusAccepted, dto.ReconcileAccepted{RunID: runID, StatusURL: reconcileStatusPath})
	}
}

// ReconcileStatus は実行中かどうかと直近の結果を返します。
//
// GET /admin/reconcile/status
func (h *IntegrityHandler) ReconcileStatus(c *gin.Context) {
	st := h.reconciler.Status()
	body := gin.H{"running": st.Running, "current": st.Status}
	if st.Last != nil {
		body["last"] = st.Last
		body["outcome"] = st.Last.Outcome()
	}
	c.JSON(http.StatusOK, body)
}

func (h *IntegrityHandler) internalError(c *gin.Context, msg string, err error) {
	slog.ErrorContext(c.Request.Context(), msg, "error", err)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
}
