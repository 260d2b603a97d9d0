package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candle_pipeline/internal/feature/candles/domain/entity"
	"candle_pipeline/internal/feature/candles/domain/indicator"
	"candle_pipeline/internal/feature/candles/transport/handler"
	"candle_pipeline/internal/feature/candles/usecase"
	"candle_pipeline/internal/shared/runguard"
)

// mockCandlesUsecase はCandlesUsecaseインターフェースのモック実装です。
type mockCandlesUsecase struct {
	GetCandlesFunc    func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error)
	GetLatestFunc     func(ctx context.Context, symbol string) (entity.Bar, bool, error)
	GetIndicatorsFunc func(ctx context.Context, q usecase.CandleQuery, maPeriods []int, rsiPeriod int) (usecase.IndicatorResult, error)
}

func (m *mockCandlesUsecase) GetCandles(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error) {
	return m.GetCandlesFunc(ctx, q)
}

func (m *mockCandlesUsecase) GetLatest(ctx context.Context, symbol string) (entity.Bar, bool, error) {
	return m.GetLatestFunc(ctx, symbol)
}

func (m *mockCandlesUsecase) GetIndicators(ctx context.Context, q usecase.CandleQuery, maPeriods []int, rsiPeriod int) (usecase.IndicatorResult, error) {
	return m.GetIndicatorsFunc(ctx, q, maPeriods, rsiPeriod)
}

var testTime = time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)

func testBar() entity.Bar {
	return entity.Bar{
		Symbol: "AAPL", Time: testTime,
		Open: decimal.RequireFromString("100.00"), High: decimal.RequireFromString("101.00"),
		Low: decimal.RequireFromString("99.50"), Close: decimal.RequireFromString("100.50"),
		Volume: 1000,
	}
}

func newRouter(h *handler.CandlesHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/candles/:symbol", h.GetCandles)
	r.GET("/candles/:symbol/latest", h.GetLatest)
	r.GET("/indicators/:symbol", h.GetIndicators)
	return r
}

func serve(r http.Handler, method, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestCandlesHandler_GetCandles はGetCandlesのHTTPリクエスト/レスポンス処理をテストします。
func TestCandlesHandler_GetCandles(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		mockGetCandles func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error)
		expectedStatus int
		expectedBody   string // JSON文字列として比較
	}{
		{
			name: "success: all parameters specified",
			url:  "/candles/aapl?timeframe=1m&from=2025-01-02T09:30:00Z&to=2025-01-02%2010:00:00&limit=10",
			mockGetCandles: func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error) {
				assert.Equal(t, "aapl", q.Symbol)
				assert.Equal(t, entity.Minute1, q.Timeframe)
				assert.Equal(t, 10, q.Limit)
				assert.True(t, q.From.Equal(testTime))
				assert.True(t, q.To.Equal(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)))
				return []entity.Bar{testBar()}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"symbol":"AAPL","timeframe":"1m","candles":[` +
				`{"time":"2025-01-02 09:30:00","open":"100","high":"101","low":"99.5","close":"100.5","volume":1000}]}`,
		},
		{
			name: "success: default parameter values",
			url:  "/candles/AAPL",
			mockGetCandles: func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error) {
				assert.Equal(t, entity.Timeframe(0), q.Timeframe)
				assert.Equal(t, 0, q.Limit)
				assert.True(t, q.From.IsZero())
				return []entity.Bar{}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"symbol":"AAPL","timeframe":"5m","candles":[]}`,
		},
		{
			name:           "error: unsupported timeframe",
			url:            "/candles/AAPL?timeframe=7m",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"unsupported timeframe \"7m\""}`,
		},
		{
			name:           "error: invalid limit",
			url:            "/candles/AAPL?limit=abc",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid limit \"abc\""}`,
		},
		{
			name: "error: invalid query from usecase",
			url:  "/candles/AAPL?from=2025-01-02T10:00:00Z&to=2025-01-02T09:00:00Z",
			mockGetCandles: func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error) {
				return nil, fmt.Errorf("%w: from must be before to", usecase.ErrInvalidQuery)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid candle query: from must be before to"}`,
		},
		{
			name: "error: store failure",
			url:  "/candles/AAPL",
			mockGetCandles: func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error) {
				return nil, fmt.Errorf("range: %w: connection refused", usecase.ErrStoreUnavailable)
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"internal server error"}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mockUC := &mockCandlesUsecase{GetCandlesFunc: tt.mockGetCandles}
			if mockUC.GetCandlesFunc == nil {
				mockUC.GetCandlesFunc = func(ctx context.Context, q usecase.CandleQuery) ([]entity.Bar, error) {
					t.Error("usecase must not be called")
					return nil, nil
				}
			}
			w := serve(newRouter(handler.NewCandlesHandler(mockUC)), http.MethodGet, tt.url)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestCandlesHandler_GetLatest(t *testing.T) {
	tests := []struct {
		name           string
		bar            entity.Bar
		found          bool
		err            error
		expectedStatus int
	}{
		{"success: latest bar", testBar(), true, nil, http.StatusOK},
		{"not found: no data", entity.Bar{}, false, nil, http.StatusNotFound},
		{"error: store failure", entity.Bar{}, false, usecase.ErrStoreUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			mockUC := &mockCandlesUsecase{
				GetLatestFunc: func(ctx context.Context, symbol string) (entity.Bar, bool, error) {
					assert.Equal(t, "AAPL", symbol)
					return tt.bar, tt.found, tt.err
				},
			}
			w := serve(newRouter(handler.NewCandlesHandler(mockUC)), http.MethodGet, "/candles/AAPL/latest")

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.JSONEq(t, `{"time":"2025-01-02 09:30:00","open":"100","high":"101","low":"99.5","close":"100.5","volume":1000}`, w.Body.String())
			}
		})
	}
}

// TestCandlesHandler_GetIndicators は指標値がバーごとに整列し、履歴不足が null になることを検証します。
func TestCandlesHandler_GetIndicators(t *testing.T) {
	nd := func(s string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(s))
	}

	t.Run("success: aligned points", func(t *testing.T) {
		second := testBar()
		second.Time = testTime.Add(time.Hour)
		second.Close = decimal.RequireFromString("102")

		mockUC := &mockCandlesUsecase{
			GetIndicatorsFunc: func(ctx context.Context, q usecase.CandleQuery, maPeriods []int, rsiPeriod int) (usecase.IndicatorResult, error) {
				assert.Equal(t, entity.Hour1, q.Timeframe)
				assert.Equal(t, []int{2}, maPeriods)
				assert.Equal(t, 1, rsiPeriod)
				return usecase.IndicatorResult{
					Bars: []entity.Bar{testBar(), second},
					MA:   map[int]indicator.Series{2: {decimal.NullDecimal{}, nd("101.25")}},
					RSI:  indicator.Series{decimal.NullDecimal{}, nd("100.00")},
				}, nil
			},
		}
		w := serve(newRouter(handler.NewCandlesHandler(mockUC)), http.MethodGet, "/indicators/AAPL?timeframe=1h&ma=2&rsi=1")

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"symbol": "AAPL",
			"timeframe": "1h",
			"ma_periods": [2],
			"rsi_period": 1,
			"points": [
				{"time": "2025-01-02 09:30:00", "close": "100.5", "ma": {"2": null}, "rsi": null},
				{"time": "2025-01-02 10:30:00", "close": "102", "ma": {"2": "101.25"}, "rsi": "100"}
			]
		}`, w.Body.String())
	})

	t.Run("error: invalid ma period", func(t *testing.T) {
		w := serve(newRouter(handler.NewCandlesHandler(&mockCandlesUsecase{})), http.MethodGet, "/indicators/AAPL?ma=5,x")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("error: invalid rsi period", func(t *testing.T) {
		w := serve(newRouter(handler.NewCandlesHandler(&mockCandlesUsecase{})), http.MethodGet, "/indicators/AAPL?rsi=0")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	for _, path := range []string{
		"/indicators/AAPL?rsi=8589934592",
		"/indicators/AAPL?rsi=5001",
		"/indicators/AAPL?ma=5,1099511627776",
	} {
		path := path
		t.Run("error: oversized period "+path, func(t *testing.T) {
			// usecase に到達すると GetIndicatorsFunc が nil で panic する
			w := serve(newRouter(handler.NewCandlesHandler(&mockCandlesUsecase{})), http.MethodGet, path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// mockIngestRunner はIngestRunnerインターフェースのモック実装です。
type mockIngestRunner struct {
	RunFunc func(ctx context.Context) (usecase.CycleResult, error)
}

func (m *mockIngestRunner) Run(ctx context.Context) (usecase.CycleResult, error) {
	return m.RunFunc(ctx)
}

func TestIngestHandler_Trigger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		result         usecase.CycleResult
		err            error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "success: cycle result returned",
			result:         usecase.CycleResult{RunID: "run-1", Records: 2, Batch: usecase.BatchResult{Inserted: 2}},
			expectedStatus: http.StatusOK,
			expectedSubstr: `"inserted":2`,
		},
		{
			name:           "conflict: cycle already running",
			err:            &runguard.ConcurrentRunError{Current: runguard.Status{Name: "ingest", Running: true, RunID: "run-0"}},
			expectedStatus: http.StatusConflict,
			expectedSubstr: `"run_id":"run-0"`,
		},
		{
			name:           "error: store failure",
			err:            errors.New("candle store unavailable"),
			expectedStatus: http.StatusInternalServerError,
			expectedSubstr: "candle store unavailable",
		},
		{
			name:           "error: producer file unreadable",
			err:            fmt.Errorf("fetch batch: %w: %w", usecase.ErrSourceFailure, errors.New("permission denied")),
			expectedStatus: http.StatusBadGateway,
			expectedSubstr: "permission denied",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewIngestHandler(&mockIngestRunner{
				RunFunc: func(ctx context.Context) (usecase.CycleResult, error) { return tt.result, tt.err },
			})
			r := gin.New()
			r.POST("/admin/ingest", h.Trigger)

			w := serve(r, http.MethodPost, "/admin/ingest")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedSubstr)
		})
	}
}
