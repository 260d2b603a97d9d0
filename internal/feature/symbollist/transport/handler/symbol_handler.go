package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/symbollist/domain/entity"
	"candle_pipeline/internal/feature/symbollist/transport/http/dto"
)

// SymbolUsecase は銘柄情報に関するユースケースのインターフェースです。
// Following Go convention: interfaces are defined by the consumer (handler), not the provider (usecase).
type SymbolUsecase interface {
	ListSymbols(ctx context.Context) ([]entity.Symbol, error)
}

// SymbolHandler は銘柄情報に関するHTTPリクエストを処理します。
type SymbolHandler struct {
	uc SymbolUsecase
}

// NewSymbolHandler は新しい SymbolHandler を作成します。
func NewSymbolHandler(uc SymbolUsecase) *SymbolHandler {
	return &SymbolHandler{uc: uc}
}

// List はストアにある銘柄と、それぞれの最新バーの時刻を返します。
//
// GET /symbols
func (h *SymbolHandler) List(c *gin.Context) {
	symbols, err := h.uc.ListSymbols(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list symbols failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]dto.SymbolItem, 0, len(symbols))
	for _, s := range symbols {
		item := dto.SymbolItem{Code: s.Code}
		if s.LatestAt != nil {
			item.LatestAt = s.LatestAt.UTC().Format(candleentity.TimestampLayout)
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}
