package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	candleentity "candle_pipeline/internal/feature/candles/domain/entity"
	candlehandler "candle_pipeline/internal/feature/candles/transport/handler"
	candleusecase "candle_pipeline/internal/feature/candles/usecase"
	integrityentity "candle_pipeline/internal/feature/integrity/domain/entity"
	integrityhandler "candle_pipeline/internal/feature/integrity/transport/handler"
	integrityusecase "candle_pipeline/internal/feature/integrity/usecase"
	symbollistentity "candle_pipeline/internal/feature/symbollist/domain/entity"
	symbollisthandler "candle_pipeline/internal/feature/symbollist/transport/handler"
	httphandler "candle_pipeline/internal/platform/http/handler"
	jwtmw "candle_pipeline/internal/platform/jwt"
	"candle_pipeline/internal/platform/scheduler"
	"candle_pipeline/internal/shared/runguard"
)

const testSecret = "router-test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubCandles struct{}

func (stubCandles) GetCandles(context.Context, candleusecase.CandleQuery) ([]candleentity.Bar, error) {
	return []candleentity.Bar{}, nil
}

func (stubCandles) GetLatest(context.Context, string) (candleentity.Bar, bool, error) {
	return candleentity.Bar{}, false, nil
}

func (stubCandles) GetIndicators(context.Context, candleusecase.CandleQuery, []int, int) (candleusecase.IndicatorResult, error) {
	return candleusecase.IndicatorResult{}, nil
}

type stubIngest struct{}

func (stubIngest) Run(context.Context) (candleusecase.CycleResult, error) {
	return candleusecase.CycleResult{RunID: "ingest-1"}, nil
}

type stubIntegrity struct{}

func (stubIntegrity) Scan(context.Context) ([]integrityentity.Issue, error) {
	return []integrityentity.Issue{}, nil
}

func (stubIntegrity) Repair(context.Context, []integrityentity.Issue) (integrityentity.RepairReport, error) {
	return integrityentity.RepairReport{}, nil
}

type stubReconciler struct{}

func (stubReconciler) Start(context.Context, []string) (string, error) { return "run-1", nil }

func (stubReconciler) Status() integrityusecase.ReconcileStatus {
	return integrityusecase.ReconcileStatus{Status: runguard.Status{Name: "reconcile"}}
}

type stubSymbols struct{}

func (stubSymbols) ListSymbols(context.Context) ([]symbollistentity.Symbol, error) {
	return []symbollistentity.Symbol{{Code: "AAPL"}}, nil
}

func newTestRouter(checks ...httphandler.Check) *gin.Engine {
	return NewRouter(Handlers{
		Candles:   candlehandler.NewCandlesHandler(stubCandles{}),
		Ingest:    candlehandler.NewIngestHandler(stubIngest{}),
		Integrity: integrityhandler.NewIntegrityHandler(stubIntegrity{}, stubReconciler{}),
		Symbols:   symbollisthandler.NewSymbolHandler(stubSymbols{}),
		Readiness: checks,
		Jobs: func() []scheduler.JobStatus {
			return []scheduler.JobStatus{{Name: "ingest", Interval: time.Minute}}
		},
	})
}

func adminToken(t *testing.T, scope string) string {
	t.Helper()
	token, err := jwtmw.NewGenerator(testSecret, time.Hour).GenerateToken("ops", scope)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestNewRouter_PublicRoutes(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"health", "/healthz", http.StatusOK},
		{"readiness without checks", "/readyz", http.StatusOK},
		{"symbols", "/symbols", http.StatusOK},
		{"candles", "/candles/AAPL", http.StatusOK},
		{"latest not found", "/candles/AAPL/latest", http.StatusNotFound},
		{"indicators", "/indicators/AAPL", http.StatusOK},
		{"stream disabled", "/ws/bars", http.StatusNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestNewRouter_ReadinessFailure(t *testing.T) {
	r := newTestRouter(httphandler.Check{Name: "database", Ping: func(context.Context) error { return errors.New("down") }})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"unavailable"`)
}

func TestNewRouter_AdminRoutes(t *testing.T) {
	t.Setenv(jwtmw.EnvKeyJWTSecret, testSecret)
	r := newTestRouter()

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
	}{
		{"missing token", http.MethodPost, "/admin/reconcile", "", http.StatusUnauthorized},
		{"wrong scope", http.MethodPost, "/admin/reconcile", adminToken(t, "read"), http.StatusForbidden},
		{"reconcile accepted", http.MethodPost, "/admin/reconcile", adminToken(t, jwtmw.ScopeAdmin), http.StatusAccepted},
		{"reconcile status", http.MethodGet, "/admin/reconcile/status", adminToken(t, jwtmw.ScopeAdmin), http.StatusOK},
		{"ingest", http.MethodPost, "/admin/ingest", adminToken(t, jwtmw.ScopeAdmin), http.StatusOK},
		{"scan", http.MethodPost, "/admin/integrity/scan", adminToken(t, jwtmw.ScopeAdmin), http.StatusOK},
		{"repair", http.MethodPost, "/admin/integrity/repair", adminToken(t, jwtmw.ScopeAdmin), http.StatusOK},
		{"jobs", http.MethodGet, "/admin/jobs", adminToken(t, jwtmw.ScopeAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
