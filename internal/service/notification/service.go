// Package notification turns committed outbox tasks into buyer and seller
// messages.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/notify"
	"marketplace-orders/internal/outbox"

	"github.com/shopspring/decimal"
)

type Service struct {
	notifier notify.Notifier
	currency string
}

func New(notifier notify.Notifier, currency string) *Service {
	return &Service{notifier: notifier, currency: currency}
}

type registrar interface {
	Register(kind domain.TaskKind, h outbox.Handler)
}

// Register installs the notification handlers on the dispatcher.
func (s *Service) Register(d registrar) {
	d.Register(domain.TaskBuyerConfirmation, s.BuyerConfirmation)
	d.Register(domain.TaskSellerFulfillment, s.SellerFulfillment)
	d.Register(domain.TaskItemStatus, s.ItemStatus)
}

func (s *Service) BuyerConfirmation(ctx context.Context, task domain.OutboxTask) error {
	var p domain.BuyerConfirmationPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	return s.notifier.NotifyBuyer(ctx, p.UserID, notify.Message{
		OrderID: p.OrderID,
		Subject: fmt.Sprintf("Order %s confirmed", p.OrderID),
		Body:    fmt.Sprintf("We received your payment of %s. Sellers have been asked to pack your items.", s.money(p.Total)),
	})
}

func (s *Service) SellerFulfillment(ctx context.Context, task domain.OutboxTask) error {
	var p domain.SellerFulfillmentPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	return s.notifier.NotifySeller(ctx, p.SellerProfileID, notify.Message{
		OrderID: p.OrderID,
		Subject: fmt.Sprintf("New paid order %s", p.OrderID),
		Body:    fmt.Sprintf("Please fulfil %d item(s): %s.", len(p.ItemIDs), strings.Join(p.ItemIDs, ", ")),
	})
}

func (s *Service) ItemStatus(ctx context.Context, task domain.OutboxTask) error {
	var p domain.ItemStatusPayload
	if err := decode(task, &p); err != nil {
		return err
	}
	body := fmt.Sprintf("Item %s is now %s.", p.OrderItemID, strings.ReplaceAll(string(p.Status), "_", " "))
	if p.TrackingNumber != "" {
		body += " Tracking number: " + p.TrackingNumber + "."
	}
	return s.notifier.NotifyBuyer(ctx, p.UserID, notify.Message{
		OrderID: p.OrderID,
		Subject: fmt.Sprintf("Update on order %s", p.OrderID),
		Body:    body,
	})
}

// money formats an amount in minor units, e.g. 95000 as "INR 950.00".
func (s *Service) money(minor int64) string {
	return strings.ToUpper(s.currency) + " " + decimal.New(minor, -2).StringFixed(2)
}

func decode(task domain.OutboxTask, v interface{}) error {
	if err := json.Unmarshal(task.Payload, v); err != nil {
		return outbox.Permanent(fmt.Errorf("decode %s payload: %w", task.Kind, err))
	}
	return nil
}
