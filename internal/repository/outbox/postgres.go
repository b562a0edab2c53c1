package outbox

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"marketplace-orders/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

// InsertTx writes tasks inside tx and returns them with ids assigned.
func InsertTx(ctx context.Context, tx pgx.Tx, tasks []domain.OutboxTask) ([]domain.OutboxTask, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	const q = `
INSERT INTO outbox_tasks (id, kind, payload, status)
VALUES ($1, $2, $3, 'pending')
RETURNING next_attempt_at`

	out := make([]domain.OutboxTask, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.Status = domain.TaskPending
		if err := tx.QueryRow(ctx, q, t.ID, string(t.Kind), []byte(t.Payload)).Scan(&t.NextAttemptAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *postgresRepo) Claim(ctx context.Context, id string, lease time.Duration) (*domain.OutboxTask, error) {
	const q = `
UPDATE outbox_tasks
SET attempts = attempts + 1,
    next_attempt_at = now() + make_interval(secs => $2),
    updated_at = now()
WHERE id = $1 AND status = 'pending' AND next_attempt_at <= now()
RETURNING id, kind, payload, status, attempts, next_attempt_at, last_error`

	var t domain.OutboxTask
	var kind, status string
	var payload []byte
	err := r.pool.QueryRow(ctx, q, id, lease.Seconds()).Scan(&t.ID, &kind, &payload, &status, &t.Attempts, &t.NextAttemptAt, &t.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("outbox repo: claim id=%s error=%v", id, err)
		return nil, err
	}
	t.Kind = domain.TaskKind(kind)
	t.Status = domain.TaskStatus(status)
	t.Payload = payload
	return &t, nil
}

func (r *postgresRepo) MarkDone(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.TaskDone, nil, "")
}

func (r *postgresRepo) MarkRetry(ctx context.Context, id string, next time.Time, lastErr string) error {
	return r.setStatus(ctx, id, domain.TaskPending, &next, lastErr)
}

func (r *postgresRepo) MarkDead(ctx context.Context, id string, lastErr string) error {
	return r.setStatus(ctx, id, domain.TaskDead, nil, lastErr)
}

func (r *postgresRepo) setStatus(ctx context.Context, id string, status domain.TaskStatus, next *time.Time, lastErr string) error {
	const q = `
UPDATE outbox_tasks
SET status = $2,
    next_attempt_at = COALESCE($3, next_attempt_at),
    last_error = $4,
    updated_at = now()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, string(status), next, lastErr)
	if err != nil {
		r.logger.Printf("outbox repo: set status id=%s status=%s error=%v", id, status, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) ListDue(ctx context.Context, limit int) ([]string, error) {
	const q = `
SELECT id FROM outbox_tasks
WHERE status = 'pending' AND next_attempt_at <= now()
ORDER BY next_attempt_at
LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		r.logger.Printf("outbox repo: list due error=%v", err)
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}
