package httpserver

import (
	"net/http"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/service/fulfillment"

	"github.com/gin-gonic/gin"
)

func (h *handlers) updateOrderItem(c *gin.Context) {
	var req fulfillment.ItemUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := domain.ParseOrderStatus(string(req.Status)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	o, err := h.deps.Fulfillment.UpdateItemStatus(c.Request.Context(), sellerID(c), c.Param("itemId"), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
