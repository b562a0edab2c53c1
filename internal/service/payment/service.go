package payment

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/gateway"
	orderrepo "marketplace-orders/internal/repository/order"
)

type orderStore interface {
	UpdatePayment(ctx context.Context, orderID string, fn orderrepo.PaymentMutation) (*domain.Order, error)
	UpdatePaymentByTransaction(ctx context.Context, transactionID string, fn orderrepo.PaymentMutation) (*domain.Order, error)
}

type eventRecorder interface {
	WebhookEvent(eventType, outcome string)
}

type Service struct {
	orders  orderStore
	gateway gateway.Gateway
	metrics eventRecorder
	logger  *log.Logger
}

func New(orders orderStore, gw gateway.Gateway, metrics eventRecorder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{orders: orders, gateway: gw, metrics: metrics, logger: logger}
}

// CreateOrUpdateIntent returns a client secret for paying orderID. An order
// has at most one intent: a retried checkout updates the existing one.
func (s *Service) CreateOrUpdateIntent(ctx context.Context, userID, orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", domain.Validationf("orderId is required")
	}

	var secret string
	_, err := s.orders.UpdatePayment(ctx, orderID, func(o *domain.Order) (*domain.PaymentChange, error) {
		if o.UserID != userID {
			return nil, domain.NotFoundf("order %s not found", orderID)
		}
		if o.Status == domain.OrderCancelled {
			return nil, domain.Validationf("order %s is cancelled", o.ID)
		}
		if o.TotalAmount <= 0 {
			return nil, domain.Validationf("order %s has nothing to pay", o.ID)
		}
		p := o.Payment
		if p != nil && (p.Status == domain.PaymentSucceeded || p.Status == domain.PaymentRefunded) {
			return nil, domain.Validationf("order %s is already paid", o.ID)
		}

		in := gateway.IntentInput{
			OrderID:        o.ID,
			Amount:         o.TotalAmount,
			Currency:       o.Currency,
			IdempotencyKey: "intent-" + o.ID,
		}
		var (
			intent *gateway.Intent
			err    error
		)
		if p != nil && p.GatewayTransactionID != "" {
			intent, err = s.gateway.UpdateIntent(ctx, p.GatewayTransactionID, in)
			if err != nil {
				return nil, domain.GatewayError(err, "update payment intent")
			}
		} else {
			intent, err = s.gateway.CreateIntent(ctx, in)
			if err != nil {
				return nil, domain.GatewayError(err, "create payment intent")
			}
		}
		secret = intent.ClientSecret
		return &domain.PaymentChange{
			Status:               domain.PaymentPending,
			GatewayTransactionID: intent.TransactionID,
			ClientSecret:         intent.ClientSecret,
			GatewayResponse:      intent.Raw,
		}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.NotFoundf("order %s not found", orderID)
		}
		if errors.Is(err, domain.ErrGateway) {
			s.logger.Printf("payment: intent order_id=%s error=%v", orderID, err)
		}
		return "", err
	}
	return secret, nil
}

// HandleWebhookEvent applies a verified gateway event. Only pending payments
// move, so replays and out-of-order deliveries leave state unchanged.
func (s *Service) HandleWebhookEvent(ctx context.Context, ev *gateway.Event) error {
	var apply func(o *domain.Order) (*domain.PaymentChange, error)
	switch ev.Type {
	case gateway.EventPaymentSucceeded:
		apply = succeeded(ev)
	case gateway.EventPaymentFailed:
		apply = failed(ev)
	default:
		s.record(ev.Type, "ignored")
		return nil
	}
	if ev.TransactionID == "" {
		s.record(ev.Type, "rejected")
		return domain.Validationf("event %s has no payment intent", ev.ID)
	}

	applied := false
	o, err := s.orders.UpdatePaymentByTransaction(ctx, ev.TransactionID, func(o *domain.Order) (*domain.PaymentChange, error) {
		applied = false
		if o.Payment == nil || o.Payment.Status != domain.PaymentPending {
			return nil, nil
		}
		change, err := apply(o)
		applied = err == nil && change != nil
		return change, err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.record(ev.Type, "unknown_payment")
			return domain.NotFoundf("payment %s not found", ev.TransactionID)
		}
		s.record(ev.Type, "error")
		s.logger.Printf("payment: webhook event_id=%s type=%s transaction_id=%s error=%v", ev.ID, ev.Type, ev.TransactionID, err)
		return err
	}

	if !applied {
		s.record(ev.Type, "duplicate")
		return nil
	}
	s.record(ev.Type, "applied")
	s.logger.Printf("payment: webhook applied event_id=%s type=%s order_id=%s payment=%s order=%s",
		ev.ID, ev.Type, o.ID, o.Payment.Status, o.Status)
	return nil
}

func succeeded(ev *gateway.Event) func(o *domain.Order) (*domain.PaymentChange, error) {
	return func(o *domain.Order) (*domain.PaymentChange, error) {
		change := &domain.PaymentChange{Status: domain.PaymentSucceeded, GatewayResponse: ev.Raw}

		// Paid after the buyer cancelled: keep the cancellation, give the money back.
		if o.Status == domain.OrderCancelled {
			task, err := domain.NewTask(domain.TaskRefund, domain.RefundPayload{
				OrderID: o.ID,
				Reason:  "payment completed after cancellation",
			})
			if err != nil {
				return nil, err
			}
			change.Tasks = []domain.OutboxTask{task}
			return change, nil
		}

		items := make(map[string]domain.OrderStatus)
		var cancelled []string
		for _, it := range o.Items {
			switch it.Status {
			case domain.OrderPending:
				items[it.ID] = domain.OrderProcessing
			case domain.OrderCancelled:
				cancelled = append(cancelled, it.ID)
			}
		}
		tasks, err := confirmationTasks(o)
		if err != nil {
			return nil, err
		}
		if amount := domain.ProratedRefund(o, cancelled); amount > 0 {
			task, err := domain.NewTask(domain.TaskRefund, domain.RefundPayload{
				OrderID: o.ID,
				Amount:  amount,
				Reason:  "items cancelled before payment completed",
			})
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
		change.Order = &domain.OrderChange{Items: items, Tasks: tasks}
		return change, nil
	}
}

func failed(ev *gateway.Event) func(o *domain.Order) (*domain.PaymentChange, error) {
	return func(o *domain.Order) (*domain.PaymentChange, error) {
		return &domain.PaymentChange{
			Status:          domain.PaymentFailed,
			FailureCode:     ev.FailureCode,
			FailureMessage:  ev.FailureMessage,
			GatewayResponse: ev.Raw,
		}, nil
	}
}

// confirmationTasks notifies the buyer once and every seller with items in
// the order once, sellers in a stable order.
func confirmationTasks(o *domain.Order) ([]domain.OutboxTask, error) {
	buyer, err := domain.NewTask(domain.TaskBuyerConfirmation, domain.BuyerConfirmationPayload{
		OrderID: o.ID,
		UserID:  o.UserID,
		Total:   o.TotalAmount,
	})
	if err != nil {
		return nil, err
	}
	tasks := []domain.OutboxTask{buyer}

	bySeller := o.ItemsBySeller()
	sellers := make([]string, 0, len(bySeller))
	for seller := range bySeller {
		sellers = append(sellers, seller)
	}
	sort.Strings(sellers)
	for _, seller := range sellers {
		var ids []string
		for _, it := range bySeller[seller] {
			if it.Status != domain.OrderCancelled {
				ids = append(ids, it.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		task, err := domain.NewTask(domain.TaskSellerFulfillment, domain.SellerFulfillmentPayload{
			OrderID:         o.ID,
			SellerProfileID: seller,
			ItemIDs:         ids,
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Service) record(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvent(eventType, outcome)
	}
}
