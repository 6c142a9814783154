package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks EvidenceStore,Notifier,UserDirectory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dutymetrics "dutyflow/internal/duty/metrics"
	"dutyflow/internal/duty/models"
	"dutyflow/internal/evidence"
	notifmodels "dutyflow/internal/notification/models"
	usermodels "dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/sentinel"
)

type DutyStore interface {
	Create(ctx context.Context, d *models.Duty) error
	FindByID(ctx context.Context, dutyID id.DutyID) (*models.Duty, error)
	ListByAssignee(ctx context.Context, assignee id.UserID) ([]*models.Duty, error)
	Save(ctx context.Context, d *models.Duty) error
}

type HistoryStore interface {
	Append(ctx context.Context, e *models.HistoryEntry) error
	ListByDuty(ctx context.Context, dutyID id.DutyID) ([]*models.HistoryEntry, error)
	Last(ctx context.Context, dutyID id.DutyID) (*models.HistoryEntry, error)
}

// UserDirectory resolves assignees and actor display names.
type UserDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*usermodels.User, error)
}

// EvidenceStore uploads proof files and returns a retrievable URL.
type EvidenceStore interface {
	Upload(ctx context.Context, f evidence.File) (string, error)
	Delete(ctx context.Context, url string) error
}

// Notifier delivers best-effort notifications. It never fails the caller.
type Notifier interface {
	NotifyUser(ctx context.Context, userID id.UserID, typ notifmodels.Type, message string, metadata map[string]string)
	NotifyAdmins(ctx context.Context, typ notifmodels.Type, message string, metadata map[string]string)
}

// DutyLocker provides optional per-duty mutual exclusion across transitions.
type DutyLocker interface {
	Lock(ctx context.Context, dutyID id.DutyID) (func(), error)
}

// Service runs the duty lifecycle: every transition validates the caller's
// capability, checks the transition policy, persists the duty together with one
// audit entry, then notifies.
type Service struct {
	duties   DutyStore
	history  HistoryStore
	users    UserDirectory
	evidence EvidenceStore
	notifier Notifier
	tx       StoreTx
	locker   DutyLocker
	policy   models.TransitionPolicy
	logger   *slog.Logger
	metrics  *dutymetrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

// WithTx replaces the in-process unit of work, typically with a database transaction.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithLocker(l DutyLocker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithPolicy(p models.TransitionPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *dutymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(duties DutyStore, history HistoryStore, users UserDirectory, ev EvidenceStore, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		duties:   duties,
		history:  history,
		users:    users,
		evidence: ev,
		notifier: notifier,
		policy:   models.PolicyStrict,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(duties, history)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("dutyflow/duty")
	}
	return s
}

// Policy reports the transition policy in force.
func (s *Service) Policy() models.TransitionPolicy {
	return s.policy
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "duty."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.MessageOf(err))
	}
	span.End()
}

func (s *Service) lock(ctx context.Context, dutyID id.DutyID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.Lock(ctx, dutyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "duty is being modified, try again")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to lock duty")
	}
	return unlock, nil
}

// translate maps infrastructure failures to the domain taxonomy. Domain errors pass
// through untouched.
func translate(err error, notFoundMsg, op string) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to "+op)
	}
}

func (s *Service) observe(transition models.Transition, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.ObserveTransition(string(transition), outcome, start)
}

func (s *Service) logTransition(ctx context.Context, transition models.Transition, d *models.Duty, actor models.Actor) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, "duty transition",
		"transition", string(transition),
		"duty_id", d.ID.String(),
		"status", string(d.Status),
		"actor_id", actor.ID.String(),
	)
}
