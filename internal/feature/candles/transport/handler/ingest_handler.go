package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"candle_pipeline/internal/feature/candles/transport/http/dto"
	"candle_pipeline/internal/feature/candles/usecase"
	"candle_pipeline/internal/shared/runguard"
)

// IngestRunner は取り込みサイクルを実行します。
type IngestRunner interface {
	Run(ctx context.Context) (usecase.CycleResult, error)
}

// IngestHandler は取り込みサイクルの手動実行を受け付けます。
type IngestHandler struct {
	runner IngestRunner
}

// NewIngestHandler は新しい IngestHandler を作成します。
func NewIngestHandler(runner IngestRunner) *IngestHandler {
	return &IngestHandler{runner: runner}
}

// Trigger は取り込みサイクルを同期的に1回実行し、結果を返します。
// 実行中のサイクルがある場合は 409 と実行中の状態を返します。
//
// POST /admin/ingest
func (h *IngestHandler) Trigger(c *gin.Context) {
	res, err := h.runner.Run(c.Request.Context())
	var cre *runguard.ConcurrentRunError
	switch {
	case errors.As(err, &cre):
		c.JSON(http.StatusConflict, dto.ConflictResponse{Error: err.Error(), Current: cre.Current})
	case errors.Is(err, usecase.ErrSourceFailure):
		slog.ErrorContext(c.Request.Context(), "ingest source failed", "run_id", res.RunID, "error", err)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: err.Error()})
	case err != nil:
		slog.ErrorContext(c.Request.Context(), "ingest cycle failed", "run_id", res.RunID, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}
