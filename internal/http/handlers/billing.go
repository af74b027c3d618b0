package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/clusterforge-backend/internal/billing"
	"github.com/yungbote/clusterforge-backend/internal/http/response"
	"github.com/yungbote/clusterforge-backend/internal/pkg/dbctx"
)

type BillingHandler struct {
	ledger *billing.Ledger
}

func NewBillingHandler(ledger *billing.Ledger) *BillingHandler {
	return &BillingHandler{ledger: ledger}
}

// GET /api/billing/balance
func (h *BillingHandler) Balance(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	cents, err := h.ledger.Balance(dbctx.Context{Ctx: c.Request.Context()}, owner)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"balance_cents": cents,
		"page_cents":    h.ledger.UnitCents(),
	})
}
