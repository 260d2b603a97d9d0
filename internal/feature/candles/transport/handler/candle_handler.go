// Package handler はcandlesフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/transport/http/dto"
	"candle_pipeline/internal/feature/candles/usecase"
)

// CandlesUsecase はローソク足データ参照のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type CandlesUsecase interface {
	GetCandles(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error)
	GetLatest(ctx context.Context, symbol string) (entity.Bar, bool, error)
	GetIndicators(ctx context.Context, q usecase.CandleQuery, maPeriods []int, rsiPeriod int) (usecase.IndicatorResult, error)
}

// CandlesHandler はローソク足データのHTTPリクエストを処理します。
type CandlesHandler struct {
	uc CandlesUsecase
}

// NewCandlesHandler は指定されたusecaseでCandlesHandlerの新しいインスタンスを生成します。
func NewCandlesHandler(uc CandlesUsecase) *CandlesHandler {
	return &CandlesHandler{uc: uc}
}

// GetCandles は銘柄コードと時間足を受け取り、集計済みのローソク足をJSONで返します。
//
// エンドポイント例:
// GET /candles/:symbol?timeframe=5m&from=2025-01-02T09:30:00Z&to=2025-01-02T16:00:00Z&limit=200
func (h *CandlesHandler) GetCandles(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	bars, err := h.uc.GetCandles(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CandlesResponse{
		Symbol:    entity.NormalizeSymbol(q.Symbol),
		Timeframe: timeframeName(q.Timeframe),
		Candles:   toCandleResponses(bars),
	})
}

// GetLatest は銘柄の最新の1分足を返します。データがなければ 404 です。
func (h *CandlesHandler) GetLatest(c *gin.Context) {
	symbol := c.Param("symbol")
	bar, found, err := h.uc.GetLatest(c.Request.Context(), symbol)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "no data for symbol " + entity.NormalizeSymbol(symbol)})
		return
	}
	c.JSON(http.StatusOK, toCandleResponse(bar))
}

// GetIndicators は移動平均とRSIを、バーごとに整列した形で返します。
//
// エンドポイント例:
// GET /indicators/:symbol?timeframe=1h&ma=5,20&rsi=14&limit=100
func (h *CandlesHandler) GetIndicators(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	maPeriods, err := parsePeriods(c.Query("ma"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	rsiPeriod := 0
	if s := c.Query("rsi"); s != "" {
		rsiPeriod, err = strconv.Atoi(s)
		if err != nil || rsiPeriod <= 0 || rsiPeriod > usecase.MaxIndicatorPeriod {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: fmt.Sprintf("invalid rsi period %q", s)})
			return
		}
	}

	res, err := h.uc.GetIndicators(c.Request.Context(), q, maPeriods, rsiPeriod)
	if err != nil {
		writeError(c, err)
		return
	}

	if rsiPeriod == 0 {
		rsiPeriod = usecase.DefaultRSIPeriod
	}

	periods := make([]int, 0, len(res.MA))
	for p := range res.MA {
		periods = append(periods, p)
	}
	sort.Ints(periods)

	points := make([]dto.IndicatorPoint, 0, len(res.Bars))
	for i, b := range res.Bars {
		pt := dto.IndicatorPoint{
			Time:  b.Time.Format(entity.TimestampLayout),
			Close: b.Close,
			MA:    make(map[string]decimal.NullDecimal, len(periods)),
		}
		for _, p := range periods {
			if i < len(res.MA[p]) {
				pt.MA[strconv.Itoa(p)] = res.MA[p][i]
			}
		}
		if i < len(res.RSI) {
			pt.RSI = res.RSI[i]
		}
		points = append(points, pt)
	}

	c.JSON(http.StatusOK, dto.IndicatorsResponse{
		Symbol:    entity.NormalizeSymbol(q.Symbol),
		Timeframe: timeframeName(q.Timeframe),
		MAPeriods: periods,
		RSIPeriod: rsiPeriod,
		Points:    points,
	})
}

func parseQuery(c *gin.Context) (usecase.CandleQuery, error) {
	q := usecase.CandleQuery{Symbol: c.Param("symbol")}

	// 未指定の場合はデフォルト値を使用
	if s := c.Query("timeframe"); s != "" {
		tf, err := entity.ParseTimeframe(s)
		if err != nil {
			return q, err
		}
		q.Timeframe = tf
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = n
	}
	var err error
	if q.From, err = parseTime(c.Query("from")); err != nil {
		return q, fmt.Errorf("invalid from: %w", err)
	}
	if q.To, err = parseTime(c.Query("to")); err != nil {
		return q, fmt.Errorf("invalid to: %w", err)
	}
	return q, nil
}

// parseTime は RFC3339 と "2006-01-02 15:04:05" を受け付けます。空文字はゼロ値です。
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return entity.NormalizeTime(t), nil
	}
	t, err := time.Parse(entity.TimestampLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return entity.NormalizeTime(t), nil
}

func parsePeriods(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 || n > usecase.MaxIndicatorPeriod {
			return nil, fmt.Errorf("invalid moving average period %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func timeframeName(tf entity.Timeframe) string {
	if tf == 0 {
		tf = usecase.DefaultTimeframe
	}
	return tf.String()
}

func toCandleResponse(b entity.Bar) dto.CandleResponse {
	return dto.CandleResponse{
		Time:   b.Time.Format(entity.TimestampLayout),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

func toCandleResponses(bars []entity.Bar) []dto.CandleResponse {
	out := make([]dto.CandleResponse, 0, len(bars))
	for _, b := range bars {
		out = append(out, toCandleResponse(b))
	}
	return out
}

// writeError はユースケースのエラーをHTTPステータスに対応付けます。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidQuery),
		errors.Is(err, entity.ErrValidation),
		errors.Is(err, entity.ErrParse):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "candles request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}
