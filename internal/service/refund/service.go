package refund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/gateway"
	"marketplace-orders/internal/outbox"
	orderrepo "marketplace-orders/internal/repository/order"
)

type orderStore interface {
	Update(ctx context.Context, orderID string, fn orderrepo.Mutation) (*domain.Order, error)
	UpdatePayment(ctx context.Context, orderID string, fn orderrepo.PaymentMutation) (*domain.Order, error)
}

type refundRecorder interface {
	Refund(outcome string)
}

type refunder interface {
	Refund(ctx context.Context, in gateway.RefundInput) (*gateway.Refund, error)
}

type Options struct {
	ReturnWindow       time.Duration
	CancelReasonMinLen int
}

type Service struct {
	orders  orderStore
	gateway refunder
	metrics refundRecorder
	opts    Options
	logger  *log.Logger
	now     func() time.Time
}

func New(orders orderStore, gw refunder, metrics refundRecorder, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.ReturnWindow <= 0 {
		opts.ReturnWindow = 7 * 24 * time.Hour
	}
	return &Service{orders: orders, gateway: gw, metrics: metrics, opts: opts, logger: logger, now: time.Now}
}

// Cancel cancels a pending or processing order with all its items. The refund
// of a captured payment is written to the outbox with the cancellation and
// runs after it commits; its failure never undoes the cancellation.
func (s *Service) Cancel(ctx context.Context, userID, orderID, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < s.opts.CancelReasonMinLen {
		return nil, domain.Validationf("cancellation reason must be at least %d characters", s.opts.CancelReasonMinLen)
	}

	o, err := s.orders.Update(ctx, orderID, func(o *domain.Order) (*domain.OrderChange, error) {
		if o.UserID != userID {
			return nil, domain.NotFoundf("order %s not found", orderID)
		}
		if o.Status != domain.OrderPending && o.Status != domain.OrderProcessing {
			return nil, domain.Validationf("order %s cannot be cancelled while %s", o.ID, o.Status)
		}
		items := domain.CascadeItems(o, domain.OrderCancelled)
		change := &domain.OrderChange{
			Items:              items,
			CancellationReason: reason,
			Restock:            domain.RestockableOnCancel(o, items),
		}
		if o.Payment != nil && o.Payment.Status == domain.PaymentSucceeded {
			task, err := domain.NewTask(domain.TaskRefund, domain.RefundPayload{OrderID: o.ID, Reason: "order cancelled: " + reason})
			if err != nil {
				return nil, err
			}
			change.Tasks = append(change.Tasks, task)
		}
		return change, nil
	})
	if err != nil {
		return nil, notFound(err, orderID)
	}
	s.logger.Printf("refund: order cancelled order_id=%s user_id=%s", o.ID, userID)
	return o, nil
}

// RequestReturn moves the delivered items of a delivered order to
// return_requested and schedules a refund of what was paid for them.
func (s *Service) RequestReturn(ctx context.Context, userID, orderID, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validationf("return reason is required")
	}

	o, err := s.orders.Update(ctx, orderID, func(o *domain.Order) (*domain.OrderChange, error) {
		if o.UserID != userID {
			return nil, domain.NotFoundf("order %s not found", orderID)
		}
		if o.Status != domain.OrderDelivered {
			return nil, domain.Validationf("order %s cannot be returned while %s", o.ID, o.Status)
		}
		if s.now().Sub(o.UpdatedAt) > s.opts.ReturnWindow {
			return nil, domain.Validationf("the %d day return window for order %s has closed", int(s.opts.ReturnWindow.Hours()/24), o.ID)
		}
		change := &domain.OrderChange{Items: map[string]domain.OrderStatus{}, ReturnReason: reason}
		var returned []string
		for _, it := range o.Items {
			if it.Status == domain.OrderDelivered {
				change.Items[it.ID] = domain.OrderReturnRequested
				returned = append(returned, it.ID)
			}
		}
		if o.Payment != nil && o.Payment.Status == domain.PaymentSucceeded {
			task, err := domain.NewTask(domain.TaskRefund, domain.RefundPayload{
				OrderID: o.ID,
				Amount:  domain.ProratedRefund(o, returned),
				Reason:  "return requested: " + reason,
			})
			if err != nil {
				return nil, err
			}
			change.Tasks = append(change.Tasks, task)
		}
		return change, nil
	})
	if err != nil {
		return nil, notFound(err, orderID)
	}
	s.logger.Printf("refund: return requested order_id=%s user_id=%s", o.ID, userID)
	return o, nil
}

// InitiateRefund refunds amount of the order's payment, or everything still
// refundable when amount is nil. A refund that reaches the paid amount marks
// the payment refunded and cancels the order.
func (s *Service) InitiateRefund(ctx context.Context, orderID string, amount *int64, reason string) (*domain.Order, error) {
	req := request{reason: strings.TrimSpace(reason)}
	if amount != nil {
		if *amount <= 0 {
			return nil, domain.Validationf("refund amount must be positive")
		}
		req.amount = *amount
	}
	o, _, err := s.refund(ctx, orderID, req)
	if err != nil {
		return nil, notFound(err, orderID)
	}
	return o, nil
}

// HandleRefundTask is the outbox handler for refund tasks. Unlike
// InitiateRefund it settles for what is still refundable and treats an
// already refunded payment as done.
func (s *Service) HandleRefundTask(ctx context.Context, task domain.OutboxTask) error {
	var p domain.RefundPayload
	if err := json.Unmarshal(task.Payload, &p); err != nil {
		return outbox.Permanent(fmt.Errorf("decode refund payload: %w", err))
	}
	_, skipped, err := s.refund(ctx, p.OrderID, request{amount: p.Amount, reason: p.Reason, lenient: true})
	switch {
	case err == nil:
		if skipped {
			s.logger.Printf("refund: nothing to refund order_id=%s task_id=%s", p.OrderID, task.ID)
		}
		return nil
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConsistency):
		return outbox.Permanent(err)
	default:
		return err
	}
}

type request struct {
	amount  int64
	reason  string
	lenient bool
}

func (s *Service) refund(ctx context.Context, orderID string, req request) (*domain.Order, bool, error) {
	skipped := false
	o, err := s.orders.UpdatePayment(ctx, orderID, func(o *domain.Order) (*domain.PaymentChange, error) {
		skipped = false
		p := o.Payment
		if p == nil || p.Status != domain.PaymentSucceeded {
			if req.lenient {
				skipped = true
				return nil, nil
			}
			return nil, domain.Validationf("order %s has no captured payment to refund", o.ID)
		}

		remaining := p.Refundable()
		amount := req.amount
		switch {
		case amount == 0:
			amount = remaining
		case amount > remaining && req.lenient:
			amount = remaining
		case amount > remaining:
			return nil, domain.Validationf("refund of %d exceeds the refundable %d", amount, remaining)
		}
		if amount <= 0 {
			skipped = true
			return nil, nil
		}

		r, err := s.gateway.Refund(ctx, gateway.RefundInput{
			TransactionID:  p.GatewayTransactionID,
			Amount:         amount,
			Reason:         req.reason,
			IdempotencyKey: fmt.Sprintf("refund-%s-%d", p.ID, p.RefundAmount),
		})
		if err != nil {
			s.record("failed")
			return nil, domain.GatewayError(err, "refund")
		}
		s.record("succeeded")

		change := &domain.PaymentChange{Status: domain.PaymentSucceeded, RefundDelta: amount, GatewayResponse: r.Raw}
		if amount == remaining {
			change.Status = domain.PaymentRefunded
			items := domain.CascadeItems(o, domain.OrderCancelled)
			change.Order = &domain.OrderChange{Items: items, Restock: domain.RestockableOnCancel(o, items)}
			if o.CancellationReason == "" {
				change.Order.CancellationReason = "refunded"
				if req.reason != "" {
					change.Order.CancellationReason = req.reason
				}
			}
		}
		return change, nil
	})
	if err != nil {
		s.logger.Printf("refund: order_id=%s error=%v", orderID, err)
		return nil, false, err
	}
	if !skipped {
		s.logger.Printf("refund: refunded order_id=%s payment=%s refunded=%d", o.ID, o.Payment.Status, o.Payment.RefundAmount)
	}
	return o, skipped, nil
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.Refund(outcome)
	}
}

func notFound(err error, orderID string) error {
	var de *domain.Error
	if errors.Is(err, domain.ErrNotFound) && !errors.As(err, &de) {
		return domain.NotFoundf("order %s not found", orderID)
	}
	return err
}
