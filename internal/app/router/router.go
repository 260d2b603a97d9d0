package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	candlehandler "candle_pipeline/internal/feature/candles/transport/handler"
	integrityhandler "candle_pipeline/internal/feature/integrity/transport/handler"
	symbollisthandler "candle_pipeline/internal/feature/symbollist/transport/handler"
	httphandler "candle_pipeline/internal/platform/http/handler"
	jwtmw "candle_pipeline/internal/platform/jwt"
	"candle_pipeline/internal/platform/scheduler"
)

// Handlers はルーターに登録するハンドラー一式です。
type Handlers struct {
	Candles   *candlehandler.CandlesHandler
	Ingest    *candlehandler.IngestHandler
	Integrity *integrityhandler.IntegrityHandler
	Symbols   *symbollisthandler.SymbolHandler
	Stream    gin.HandlerFunc // WebSocket でバーを配信
	Readiness []httphandler.Check
	Jobs      func() []scheduler.JobStatus // nil ならジョブ一覧は公開しない
}

func NewRouter(h Handlers) *gin.Engine {
	r := gin.Default()

	// 認証不要
	// 導通確認用
	r.GET("/healthz", httphandler.Health)
	r.HEAD("/healthz", httphandler.Health)
	r.GET("/readyz", httphandler.Readiness(h.Readiness...))

	// 参照系
	r.GET("/symbols", h.Symbols.List)
	r.GET("/candles/:symbol", h.Candles.GetCandles)
	r.GET("/candles/:symbol/latest", h.Candles.GetLatest)
	r.GET("/indicators/:symbol", h.Candles.GetIndicators)
	if h.Stream != nil {
		r.GET("/ws/bars", h.Stream)
	}

	// 管理系は admin スコープの JWT が必要
	admin := r.Group("/admin")
	admin.Use(jwtmw.AuthRequired(jwtmw.ScopeAdmin))
	{
		admin.POST("/ingest", h.Ingest.Trigger)
		admin.POST("/integrity/scan", h.Integrity.Scan)
		admin.POST("/integrity/repair", h.Integrity.Repair)
		admin.POST("/reconcile", h.Integrity.StartReconcile)
		admin.GET("/reconcile/status", h.Integrity.ReconcileStatus)
		if h.Jobs != nil {
			admin.GET("/jobs", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"jobs": h.Jobs()})
			})
		}
	}

	return r
}
