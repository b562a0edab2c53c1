package outbox

import (
	"context"
	"time"

	"marketplace-orders/internal/domain"
)

// Repository tracks outbox task execution. Tasks are inserted by InsertTx in
// the transaction of the state change that produced them.
type Repository interface {
	// Claim leases a due pending task for one attempt. It returns
	// ErrNotFound when the task is done, dead, not yet due or leased elsewhere.
	Claim(ctx context.Context, id string, lease time.Duration) (*domain.OutboxTask, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, lastErr string) error
	// ListDue returns ids of pending tasks whose next attempt is at or before now.
	ListDue(ctx context.Context, limit int) ([]string, error)
}
