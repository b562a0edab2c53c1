package httpserver

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Provider events are far below this; anything larger is refused, not truncated.
const maxWebhookBody = 1 << 20

type intentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

func (h *handlers) createIntent(c *gin.Context) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	secret, err := h.deps.Payments.CreateOrUpdateIntent(c.Request.Context(), userID(c), req.OrderID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": secret})
}

// paymentWebhook verifies the signature before anything in the body is
// used. Unknown payments answer 404 so the provider redelivers.
func (h *handlers) paymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Printf("http: webhook rejected size_limit=%d", tooLarge.Limit)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "event too large"})
			return
		}
		badRequest(c, err)
		return
	}
	ev, err := h.deps.Webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Printf("http: webhook rejected error=%v", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}
	if err := h.deps.Payments.HandleWebhookEvent(c.Request.Context(), ev); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
