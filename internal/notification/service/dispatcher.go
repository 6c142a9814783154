package service

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks Recipients,Outbox

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	notifmetrics "dutyflow/internal/notification/metrics"
	"dutyflow/internal/notification/models"
	usermodels "dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/requestcontext"
)

// Recipients resolves who a notification goes to.
type Recipients interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
	ListAdmins(ctx context.Context) ([]*usermodels.User, error)
}

// Outbox accepts notifications for later relay.
type Outbox interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}

const defaultFanoutLimit = 4

// Dispatcher turns workflow events into outbox entries. It is fire-and-forget:
// every failure is logged and counted, none is returned.
type Dispatcher struct {
	users   Recipients
	outbox  Outbox
	logger  *slog.Logger
	metrics *notifmetrics.Metrics
	fanout  int
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *notifmetrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithFanoutLimit bounds concurrent enqueues when notifying all admins.
func WithFanoutLimit(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.fanout = n
		}
	}
}

func New(users Recipients, outbox Outbox, opts ...Option) *Dispatcher {
	d := &Dispatcher{users: users, outbox: outbox, fanout: defaultFanoutLimit}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyUser queues one notification for userID.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID id.UserID, typ models.Type, message string, metadata map[string]string) {
	ctx = context.WithoutCancel(ctx)
	u, err := d.users.FindByID(ctx, userID)
	if err != nil {
		d.fail(ctx, typ, userID, "failed to resolve notification recipient", err)
		return
	}
	d.enqueue(ctx, u, typ, message, metadata)
}

// NotifyAdmins queues one notification per admin.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, typ models.Type, message string, metadata map[string]string) {
	ctx = context.WithoutCancel(ctx)
	admins, err := d.users.ListAdmins(ctx)
	if err != nil {
		d.fail(ctx, typ, id.UserID{}, "failed to list admins for notification", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(d.fanout)
	for _, admin := range admins {
		g.Go(func() error {
			d.enqueue(ctx, admin, typ, message, metadata)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) enqueue(ctx context.Context, u *usermodels.User, typ models.Type, message string, metadata map[string]string) {
	if u.PushToken == "" {
		if d.metrics != nil {
			d.metrics.IncSkipped(string(typ))
		}
		if d.logger != nil {
			d.logger.WarnContext(ctx, "no push token for notification recipient",
				"user_id", u.ID.String(),
				"type", string(typ),
			)
		}
		return
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	n := &models.Notification{
		ID:          id.NewNotificationID(),
		RecipientID: u.ID,
		ExternalID:  u.ExternalID,
		PushToken:   u.PushToken,
		Type:        typ,
		Message:     message,
		Metadata:    meta,
		CreatedAt:   requestcontext.Now(ctx),
	}
	if err := d.outbox.Enqueue(ctx, n); err != nil {
		d.fail(ctx, typ, u.ID, "failed to enqueue notification", err)
		return
	}
	if d.metrics != nil {
		d.metrics.IncEnqueued(string(typ))
	}
	if d.logger != nil {
		d.logger.DebugContext(ctx, "notification enqueued",
			"notification_id", n.ID.String(),
			"user_id", u.ID.String(),
			"type", string(typ),
		)
	}
}

func (d *Dispatcher) fail(ctx context.Context, typ models.Type, userID id.UserID, msg string, err error) {
	if d.metrics != nil {
		d.metrics.IncEnqueueFailed(string(typ))
	}
	if d.logger != nil {
		d.logger.ErrorContext(ctx, msg,
			"user_id", userID.String(),
			"type", string(typ),
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
