package api

import (
	"encoding/json"
	"net/http"

	"github.com/DomeLiquid/payin/core"
	"github.com/DomeLiquid/payin/payin"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type PayInHandler struct {
	engine *payin.Engine
	store  core.PayInStore
	log    core.Log
}

func NewPayInHandler(engine *payin.Engine, store core.PayInStore, log core.Log) *PayInHandler {
	return &PayInHandler{engine: engine, store: store, log: log}
}

type submitRequest struct {
	Type core.PayInType  `json:"type" binding:"required"`
	Args json.RawMessage `json:"args"`
}

type payInResponse struct {
	PayIn       *core.PayIn `json:"payIn"`
	Description string      `json:"description,omitempty"`
}

// Submit POST /payins
func (h *PayInHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	payIn, err := h.engine.Submit(c.Request.Context(), req.Type, req.Args, Payer(c))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, payInResponse{PayIn: payIn})
}

// Get GET /payins/:id
func (h *PayInHandler) Get(c *gin.Context) {
	id, ok := payInId(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	payIn, err := h.store.GetPayIn(ctx, id)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	if !payIn.IsAnon() && (core.IsAnon(Payer(c)) || Payer(c).Id != payIn.UserId) {
		abort(c, h.log, core.ErrNotPayInOwner)
		return
	}
	text, err := h.engine.Describe(ctx, id)
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payInResponse{PayIn: payIn, Description: text})
}

// Retry POST /payins/:id/retry
func (h *PayInHandler) Retry(c *gin.Context) {
	id, ok := payInId(c)
	if !ok {
		return
	}
	payIn, err := h.engine.Retry(c.Request.Context(), id, Payer(c))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, payInResponse{PayIn: payIn})
}

// Cancel POST /payins/:id/cancel
func (h *PayInHandler) Cancel(c *gin.Context) {
	id, ok := payInId(c)
	if !ok {
		return
	}
	payIn, err := h.engine.Cancel(c.Request.Context(), id, Payer(c))
	if err != nil {
		abort(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payInResponse{PayIn: payIn})
}

func payInId(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payin id"})
		return uuid.Nil, false
	}
	return id, true
}
