package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type refundRequest struct {
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
}

// refundOrder refunds amount, or the whole remaining payment when amount is
// omitted.
func (h *handlers) refundOrder(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	o, err := h.deps.Refunds.InitiateRefund(c.Request.Context(), c.Param("orderId"), req.Amount, req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handlers) reconcileOrder(c *gin.Context) {
	res, err := h.deps.Reconciler.Reconcile(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
