// Package relay moves notifications from the outbox to the broker.
package relay

import (
	"context"
	"log/slog"
	"time"

	notifmetrics "dutyflow/internal/notification/metrics"
	"dutyflow/internal/notification/models"
	id "dutyflow/pkg/domain"
)

type Outbox interface {
	Claim(ctx context.Context, limit int, now time.Time) ([]*models.Notification, error)
	MarkFailed(ctx context.Context, ids []id.NotificationID, reason string, at time.Time) error
}

// Publisher delivers a batch. The returned slice is aligned with batch; nil
// entries are successes.
type Publisher interface {
	Publish(ctx context.Context, batch []*models.Notification) []error
}

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Worker polls the outbox on an interval and publishes what it claims.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	breaker   *Breaker
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *notifmetrics.Metrics
	now       func() time.Time
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithBreaker(b *Breaker) Option {
	return func(w *Worker) {
		w.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *notifmetrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func New(outbox Outbox, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		w.breaker = NewBreaker(0, 0)
	}
	return w
}

// Run drains the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				n, err := w.Tick(ctx)
				if err != nil && w.logger != nil {
					w.logger.ErrorContext(ctx, "notification relay tick failed", "error", err)
				}
				// keep draining while full batches come back
				if err != nil || n < w.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// Tick claims and publishes one batch, returning how many notifications were
// claimed.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	if !w.breaker.Allow() {
		if w.metrics != nil {
			w.metrics.IncBreakerSkipped()
		}
		return 0, nil
	}

	batch, err := w.outbox.Claim(ctx, w.batchSize, w.now())
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	errs := w.publisher.Publish(ctx, batch)
	var (
		failed  []id.NotificationID
		lastErr error
	)
	for i, n := range batch {
		if i < len(errs) && errs[i] != nil {
			failed = append(failed, n.ID)
			lastErr = errs[i]
			continue
		}
		if w.metrics != nil {
			w.metrics.IncPublished()
		}
	}

	if len(failed) == 0 {
		w.breaker.RecordSuccess()
		w.setBreakerState()
		return len(batch), nil
	}

	if w.metrics != nil {
		for range failed {
			w.metrics.IncPublishFailed()
		}
	}
	if w.breaker.RecordFailure() && w.logger != nil {
		w.logger.WarnContext(ctx, "notification relay paused, broker failing", "error", lastErr)
	}
	w.setBreakerState()
	if w.logger != nil {
		w.logger.ErrorContext(ctx, "failed to publish notifications",
			"failed", len(failed),
			"claimed", len(batch),
			"error", lastErr,
		)
	}
	if err := w.outbox.MarkFailed(ctx, failed, lastErr.Error(), w.now()); err != nil {
		return len(batch), err
	}
	return len(batch), nil
}

func (w *Worker) setBreakerState() {
	if w.metrics != nil {
		w.metrics.SetBreakerState(w.breaker.IsOpen())
	}
}
