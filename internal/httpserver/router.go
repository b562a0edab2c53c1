package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/gateway"
	"marketplace-orders/internal/orderstate"
	"marketplace-orders/internal/service/fulfillment"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CartService interface {
	Read(ctx context.Context, userID string) (*domain.EnrichedCart, error)
	AddItem(ctx context.Context, userID, offerID string, qty int) (*domain.EnrichedCart, error)
	SetQuantity(ctx context.Context, userID, offerID string, qty int) (*domain.EnrichedCart, error)
	RemoveItem(ctx context.Context, userID, offerID string) (*domain.EnrichedCart, error)
	Clear(ctx context.Context, userID string) error
	ApplyCoupon(ctx context.Context, userID, code string) (*domain.EnrichedCart, error)
	RemoveCoupon(ctx context.Context, userID string) (*domain.EnrichedCart, error)
}

type CheckoutService interface {
	CreateOrder(ctx context.Context, userID, addressID string) (*domain.Order, error)
}

type OrderService interface {
	Get(ctx context.Context, userID, orderID string) (*domain.Order, error)
	List(ctx context.Context, userID string) ([]domain.Order, error)
}

type PaymentService interface {
	CreateOrUpdateIntent(ctx context.Context, userID, orderID string) (string, error)
	HandleWebhookEvent(ctx context.Context, ev *gateway.Event) error
}

type RefundService interface {
	Cancel(ctx context.Context, userID, orderID, reason string) (*domain.Order, error)
	RequestReturn(ctx context.Context, userID, orderID, reason string) (*domain.Order, error)
	InitiateRefund(ctx context.Context, orderID string, amount *int64, reason string) (*domain.Order, error)
}

type FulfillmentService interface {
	UpdateItemStatus(ctx context.Context, sellerProfileID, itemID string, in fulfillment.ItemUpdate) (*domain.Order, error)
}

type StatusReconciler interface {
	Reconcile(ctx context.Context, orderID string) (orderstate.Result, error)
}

type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (*gateway.Event, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Carts       CartService
	Checkout    CheckoutService
	Orders      OrderService
	Payments    PaymentService
	Refunds     RefundService
	Fulfillment FulfillmentService
	Reconciler  StatusReconciler
	Webhooks    WebhookVerifier

	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]func(ctx context.Context) error

	AdminToken  string
	CORSOrigins []string
}

type handlers struct {
	deps   Deps
	logger *log.Logger
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery(), corsMiddleware(deps.CORSOrigins))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Checks))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	h := &handlers{deps: deps, logger: logger}
	router.POST("/webhooks/payments", h.paymentWebhook)

	api := router.Group("/api/v1")

	buyer := api.Group("", requireUser())
	buyer.GET("/cart", h.getCart)
	buyer.DELETE("/cart", h.clearCart)
	buyer.POST("/cart/items", h.addCartItem)
	buyer.PUT("/cart/items/:offerId", h.setCartItem)
	buyer.DELETE("/cart/items/:offerId", h.removeCartItem)
	buyer.POST("/cart/coupon", h.applyCoupon)
	buyer.DELETE("/cart/coupon", h.removeCoupon)

	buyer.POST("/orders", h.createOrder)
	buyer.GET("/orders", h.listOrders)
	buyer.GET("/orders/:orderId", h.getOrder)
	buyer.POST("/orders/:orderId/cancel", h.cancelOrder)
	buyer.POST("/orders/:orderId/return", h.returnOrder)
	buyer.POST("/payments/intent", h.createIntent)

	seller := api.Group("/seller", requireSeller())
	seller.PATCH("/order-items/:itemId", h.updateOrderItem)

	admin := api.Group("/admin", requireAdmin(deps.AdminToken))
	admin.POST("/orders/:orderId/refund", h.refundOrder)
	admin.POST("/orders/:orderId/reconcile", h.reconcileOrder)

	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", headerUserID, headerSellerID},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
