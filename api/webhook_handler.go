package api

import (
	"net/http"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/payin"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// InvoiceWebhookHandler receives invoice state changes from the Lightning node.
type InvoiceWebhookHandler struct {
	engine *payin.Engine
	log    core.Log
}

func NewInvoiceWebhookHandler(engine *payin.Engine, log core.Log) *InvoiceWebhookHandler {
	return &InvoiceWebhookHandler{engine: engine, log: log}
}

type invoiceEvent struct {
	Hash  string            `json:"hash" binding:"required"`
	State core.InvoiceState `json:"state" binding:"required"`
	Msats int64             `json:"msats"`
}

// Handle POST /invoices/webhook
func (h *InvoiceWebhookHandler) Handle(c *gin.Context) {
	var event invoiceEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	ctx := c.Request.Context()
	var (
		payIn *core.PayIn
		err   error
	)
	switch event.State {
	case core.InvoiceStateHeld:
		payIn, err = h.engine.OnInvoiceHeld(ctx, event.Hash)
	case core.InvoiceStatePaid:
		payIn, err = h.engine.OnInvoicePaid(ctx, event.Hash, decimal.NewFromInt(event.Msats))
	case core.InvoiceStateExpired, core.InvoiceStateCanceled:
		payIn, err = h.engine.OnInvoiceFailed(ctx, event.Hash, event.State)
		if errors.Is(err, core.ErrInvoiceExpired) || errors.Is(err, core.ErrInvoiceCanceled) {
			err = nil
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported invoice state"})
		return
	}
	if err != nil {
		h.log.Warn().Err(err).Str("hash", event.Hash).Str("state", event.State.String()).Msg("invoice webhook")
		abort(c, h.log, err)
		return
	}

	resp := gin.H{"received": true}
	if payIn != nil {
		resp["payInId"] = payIn.Id
		resp["state"] = payIn.PayInState
	}
	c.JSON(http.StatusOK, resp)
}
