package api

import (
	"net/http"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/payin"
	"github.com/gin-gonic/gin"
)

// NewRouter mounts the PayIn endpoints and the invoice webhook.
func NewRouter(engine *payin.Engine, store core.Store, log core.Log) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Timed())

	payIns := NewPayInHandler(engine, store, log)
	webhook := NewInvoiceWebhookHandler(engine, log)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := r.Group("/payins", Identify(store))
	{
		g.POST("", payIns.Submit)
		g.GET("/:id", payIns.Get)
		g.POST("/:id/retry", payIns.Retry)
		g.POST("/:id/cancel", payIns.Cancel)
	}

	r.POST("/invoices/webhook", webhook.Handle)
	return r
}
