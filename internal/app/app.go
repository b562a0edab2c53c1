// Package app assembles repositories, services and the outbox dispatcher
// from configuration. The api and worker commands share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"marketplace-orders/internal/config"
	"marketplace-orders/internal/db"
	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/gateway"
	"marketplace-orders/internal/httpserver"
	"marketplace-orders/internal/metrics"
	"marketplace-orders/internal/notify"
	"marketplace-orders/internal/orderstate"
	"marketplace-orders/internal/outbox"
	cartrepo "marketplace-orders/internal/repository/cart"
	customerrepo "marketplace-orders/internal/repository/customer"
	discountrepo "marketplace-orders/internal/repository/discount"
	offerrepo "marketplace-orders/internal/repository/offer"
	orderrepo "marketplace-orders/internal/repository/order"
	outboxrepo "marketplace-orders/internal/repository/outbox"
	cartsvc "marketplace-orders/internal/service/cart"
	checkoutsvc "marketplace-orders/internal/service/checkout"
	discountsvc "marketplace-orders/internal/service/discount"
	fulfillmentsvc "marketplace-orders/internal/service/fulfillment"
	notificationsvc "marketplace-orders/internal/service/notification"
	ordersvc "marketplace-orders/internal/service/order"
	paymentsvc "marketplace-orders/internal/service/payment"
	refundsvc "marketplace-orders/internal/service/refund"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type App struct {
	DB         *pgxpool.Pool
	Redis      *redis.Client
	Metrics    *metrics.Collector
	Dispatcher *outbox.Dispatcher
	Carts      *cartsvc.Service
	HTTP       httpserver.Deps

	logger *log.Logger
}

// New connects to Postgres and Redis and wires every component. Close
// releases the connections.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	gw, err := newGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	rdb, err := db.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	collector := metrics.New()

	dispatcher := outbox.NewDispatcher(
		outbox.NewRedisQueue(rdb),
		outboxrepo.NewPostgres(pool, logger),
		collector,
		logger,
		outbox.Options{
			Workers:      cfg.OutboxWorkers,
			MaxAttempts:  cfg.OutboxMaxAttempts,
			PollInterval: cfg.OutboxPollInterval,
			GatewayRPS:   cfg.GatewayRPS,
		},
	)

	offers := offerrepo.NewPostgres(pool, logger)
	orders := orderrepo.NewPostgres(pool, dispatcher, logger)
	discounts := discountsvc.New(discountrepo.NewPostgres(pool, logger))
	carts := cartsvc.New(cartrepo.NewRedis(rdb, cfg.CartTTL, logger), offers, discounts, cfg.Currency, logger)

	refunds := refundsvc.New(orders, gw, collector, refundsvc.Options{
		ReturnWindow:       cfg.ReturnWindow,
		CancelReasonMinLen: cfg.CancelReasonMinLen,
	}, logger)
	payments := paymentsvc.New(orders, gw, collector, logger)

	dispatcher.RegisterGateway(domain.TaskRefund, refunds.HandleRefundTask)
	notificationsvc.New(notify.NewLogNotifier(logger), cfg.Currency).Register(dispatcher)

	return &App{
		DB:         pool,
		Redis:      rdb,
		Metrics:    collector,
		Dispatcher: dispatcher,
		Carts:      carts,
		HTTP: httpserver.Deps{
			Carts:       carts,
			Checkout:    checkoutsvc.New(carts, customerrepo.NewPostgres(pool, logger), orders, collector, cfg.Currency, logger),
			Orders:      ordersvc.New(orders),
			Payments:    payments,
			Refunds:     refunds,
			Fulfillment: fulfillmentsvc.New(orders, logger),
			Reconciler:  orderstate.NewReconciler(orders, collector, logger),
			Webhooks:    gw,
			Metrics:     collector.Handler(),
			Checks: map[string]func(context.Context) error{
				"db":    pool.Ping,
				"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			AdminToken:  cfg.AdminToken,
			CORSOrigins: splitList(cfg.CORSOrigins),
		},
		logger: logger,
	}, nil
}

// Close waits for pending cart repairs and closes the connections.
func (a *App) Close() {
	a.Carts.Drain()
	if err := a.Redis.Close(); err != nil {
		a.logger.Printf("app: close redis error=%v", err)
	}
	a.DB.Close()
}

// newGateway refuses to start with Stripe credentials that would let unsigned
// or forgeable webhooks through. The fake gateway must be asked for by name.
func newGateway(cfg config.Config, logger *log.Logger) (gateway.Gateway, error) {
	switch cfg.PaymentGateway {
	case "fake":
		logger.Printf("app: WARNING PAYMENT_GATEWAY=fake, webhooks are NOT verified; never use this in production")
		return gateway.NewFake(), nil
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, errors.New("STRIPE_SECRET_KEY is required (set PAYMENT_GATEWAY=fake for local runs)")
		}
		if cfg.StripeWebhookSecret == "" {
			return nil, errors.New("STRIPE_WEBHOOK_SECRET is required to verify payment webhooks")
		}
		return gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown PAYMENT_GATEWAY %q", cfg.PaymentGateway)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
