// Package notify is the boundary to the notification transport (email, SMS,
// push), which lives outside this service.
package notify

import (
	"context"
	"io"
	"log"
)

type Message struct {
	Subject string
	Body    string
	OrderID string
}

type Notifier interface {
	NotifyBuyer(ctx context.Context, userID string, m Message) error
	NotifySeller(ctx context.Context, sellerProfileID string, m Message) error
}

// LogNotifier writes notifications to a logger instead of delivering them.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyBuyer(_ context.Context, userID string, m Message) error {
	n.logger.Printf("notify: buyer user_id=%s order_id=%s subject=%q", userID, m.OrderID, m.Subject)
	return nil
}

func (n *LogNotifier) NotifySeller(_ context.Context, sellerProfileID string, m Message) error {
	n.logger.Printf("notify: seller seller_profile_id=%s order_id=%s subject=%q", sellerProfileID, m.OrderID, m.Subject)
	return nil
}
