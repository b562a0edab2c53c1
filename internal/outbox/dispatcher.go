// Package outbox executes side effects recorded in outbox_tasks: refunds and
// notifications that must never block or roll back the state change that
// produced them.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"marketplace-orders/internal/domain"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	maxBackoff   = time.Hour
	defaultLease = 2 * time.Minute
	recoverEvery = time.Minute
	recoverBatch = 500
)

// ErrPermanent marks a handler failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler executes one task. A nil error marks the task done.
type Handler func(ctx context.Context, task domain.OutboxTask) error

type queue interface {
	Push(ctx context.Context, at time.Time, ids ...string) error
	PushMissing(ctx context.Context, at time.Time, ids ...string) (int64, error)
	Pop(ctx context.Context) (string, error)
}

type taskStore interface {
	Claim(ctx context.Context, id string, lease time.Duration) (*domain.OutboxTask, error)
	MarkDone(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, lastErr string) error
	ListDue(ctx context.Context, limit int) ([]string, error)
}

type recorder interface {
	TaskFinished(kind domain.TaskKind, outcome string)
}

type Options struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	// GatewayRPS paces handlers registered with RegisterGateway.
	GatewayRPS int
}

type Dispatcher struct {
	queue    queue
	store    taskStore
	metrics  recorder
	logger   *log.Logger
	opts     Options
	limiter  *rate.Limiter
	handlers map[domain.TaskKind]Handler
	paced    map[domain.TaskKind]bool
	now      func() time.Time
}

func NewDispatcher(q queue, store taskStore, metrics recorder, logger *log.Logger, opts Options) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	limit := rate.Inf
	if opts.GatewayRPS > 0 {
		limit = rate.Limit(opts.GatewayRPS)
	}
	return &Dispatcher{
		queue:    q,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, max(opts.GatewayRPS, 1)),
		handlers: make(map[domain.TaskKind]Handler),
		paced:    make(map[domain.TaskKind]bool),
		now:      time.Now,
	}
}

func (d *Dispatcher) Register(kind domain.TaskKind, h Handler) {
	d.handlers[kind] = h
}

// RegisterGateway registers a handler that calls the payment gateway and is
// therefore rate limited.
func (d *Dispatcher) RegisterGateway(kind domain.TaskKind, h Handler) {
	d.handlers[kind] = h
	d.paced[kind] = true
}

// Schedule queues committed tasks. Failures are logged only: recovery picks
// the tasks up from Postgres.
func (d *Dispatcher) Schedule(ctx context.Context, tasks []domain.OutboxTask) {
	for _, t := range tasks {
		at := t.NextAttemptAt
		if at.IsZero() {
			at = d.now()
		}
		if err := d.queue.Push(ctx, at, t.ID); err != nil {
			d.logger.Printf("outbox: enqueue task_id=%s kind=%s error=%v", t.ID, t.Kind, err)
		}
	}
}

// Run starts the workers and the recovery loop and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	if n, err := d.Recover(ctx); err != nil {
		d.logger.Printf("outbox: startup recovery error=%v", err)
	} else if n > 0 {
		d.logger.Printf("outbox: recovered %d pending tasks", n)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		g.Go(func() error {
			d.work(ctx, i)
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(recoverEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := d.Recover(ctx); err != nil && ctx.Err() == nil {
					d.logger.Printf("outbox: recovery error=%v", err)
				}
			}
		}
	})
	return g.Wait()
}

// Recover queues due pending tasks that are missing from the queue.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	ids, err := d.store.ListDue(ctx, recoverBatch)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	n, err := d.queue.PushMissing(ctx, d.now(), ids...)
	return int(n), err
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	d.logger.Printf("outbox: worker %d started", worker)
	defer d.logger.Printf("outbox: worker %d stopped", worker)

	for ctx.Err() == nil {
		id, err := d.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Printf("outbox: worker %d dequeue error=%v", worker, err)
			}
			sleep(ctx, time.Second)
			continue
		}
		if id == "" {
			sleep(ctx, d.opts.PollInterval)
			continue
		}
		d.Process(ctx, id)
	}
}

// Process claims and executes one task, then records the outcome.
func (d *Dispatcher) Process(ctx context.Context, id string) {
	task, err := d.store.Claim(ctx, id, defaultLease)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.logger.Printf("outbox: claim task_id=%s error=%v", id, err)
		}
		return
	}

	h, ok := d.handlers[task.Kind]
	if !ok {
		d.finish(ctx, task, Permanent(fmt.Errorf("no handler for kind %s", task.Kind)))
		return
	}
	if d.paced[task.Kind] {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
	}
	d.finish(ctx, task, h(ctx, *task))
}

func (d *Dispatcher) finish(ctx context.Context, task *domain.OutboxTask, runErr error) {
	switch {
	case runErr == nil:
		if err := d.store.MarkDone(ctx, task.ID); err != nil {
			d.logger.Printf("outbox: mark done task_id=%s error=%v", task.ID, err)
		}
		d.record(task.Kind, "done")

	case errors.Is(runErr, ErrPermanent) || task.Attempts >= d.opts.MaxAttempts:
		d.logger.Printf("outbox: task dead task_id=%s kind=%s attempts=%d error=%v", task.ID, task.Kind, task.Attempts, runErr)
		if err := d.store.MarkDead(ctx, task.ID, runErr.Error()); err != nil {
			d.logger.Printf("outbox: mark dead task_id=%s error=%v", task.ID, err)
		}
		d.record(task.Kind, "dead")

	default:
		next := d.now().Add(Backoff(task.Attempts))
		d.logger.Printf("outbox: task failed task_id=%s kind=%s attempts=%d retry_at=%s error=%v",
			task.ID, task.Kind, task.Attempts, next.UTC().Format(time.RFC3339), runErr)
		if err := d.store.MarkRetry(ctx, task.ID, next, runErr.Error()); err != nil {
			d.logger.Printf("outbox: mark retry task_id=%s error=%v", task.ID, err)
			return
		}
		if err := d.queue.Push(ctx, next, task.ID); err != nil {
			d.logger.Printf("outbox: requeue task_id=%s error=%v", task.ID, err)
		}
		d.record(task.Kind, "retry")
	}
}

func (d *Dispatcher) record(kind domain.TaskKind, outcome string) {
	if d.metrics != nil {
		d.metrics.TaskFinished(kind, outcome)
	}
}

// Backoff returns the delay after the given attempt: 1s doubling, capped at an hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 13 {
		return maxBackoff
	}
	delay := time.Second * time.Duration(1<<(attempt-1))
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
