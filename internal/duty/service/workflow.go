package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"dutyflow/internal/duty/models"
	"dutyflow/internal/evidence"
	notifmodels "dutyflow/internal/notification/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/sentinel"
	"dutyflow/pkg/requestcontext"
)

const (
	msgDutyNotFound      = "duty not found"
	msgNotFoundOrForeign = "duty not found or not assigned to you"
)

// Create assigns a new PENDING duty and records its first history entry.
func (s *Service) Create(ctx context.Context, actor models.Actor, req models.CreateDutyRequest) (created *models.Duty, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "create", attribute.String("assignee_id", req.AssigneeID.String()))
	defer func() {
		s.observe(models.TransitionCreate, err, start)
		endSpan(span, err)
	}()

	if err = actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if req.AssigneeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "assignee is required")
	}
	if _, err = s.users.FindByID(ctx, req.AssigneeID); err != nil {
		return nil, translate(err, "assignee not found", "look up assignee")
	}

	now := requestcontext.Now(ctx)
	d, err := models.NewDuty(id.NewDutyID(), req.Title, req.Description, req.DueDate, req.AssigneeID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.MessageOf(err))
	}

	err = s.tx.RunInTx(withTxDuty(ctx, d.ID), func(ctx context.Context, stores TxStores) error {
		if err := stores.Duties.Create(ctx, d); err != nil {
			return err
		}
		return appendEntry(ctx, stores.History, d, actor.ID, models.CommentCreated, now)
	})
	if err != nil {
		return nil, translate(err, msgDutyNotFound, "create duty")
	}

	s.logTransition(ctx, models.TransitionCreate, d, actor)
	s.notifier.NotifyUser(ctx, d.AssigneeID, notifmodels.TypeDutyAssigned,
		"You have been assigned a new duty: "+d.Title,
		map[string]string{"dutyId": d.ID.String()})
	return d, nil
}

// Complete attaches evidence and moves the actor's own duty to PENDING_APPROVAL.
// Evidence is uploaded before the unit of work; when the unit of work fails the
// upload is removed again on a best-effort basis.
func (s *Service) Complete(ctx context.Context, actor models.Actor, dutyID id.DutyID, file evidence.File, comment string) (completed *models.Duty, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "complete", attribute.String("duty_id", dutyID.String()))
	defer func() {
		s.observe(models.TransitionComplete, err, start)
		endSpan(span, err)
	}()

	if actor.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if file.Body == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "evidence file is required")
	}

	unlock, err := s.lock(ctx, dutyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.duties.FindByID(ctx, dutyID)
	if err != nil {
		return nil, translate(err, msgNotFoundOrForeign, "load duty")
	}
	if !d.IsAssignedTo(actor.ID) {
		return nil, dErrors.New(dErrors.CodeNotFound, msgNotFoundOrForeign)
	}
	if err = s.policy.Check(models.TransitionComplete, d); err != nil {
		return nil, err
	}

	url, err := s.evidence.Upload(ctx, file)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to upload evidence")
	}

	now := requestcontext.Now(ctx)
	d.EvidenceURL = url
	d.Status = models.TransitionComplete.Target()
	d.UpdatedAt = now

	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = models.CommentCompleted
	}

	if err = s.commit(ctx, d, actor.ID, comment, now); err != nil {
		s.discardEvidence(ctx, url)
		return nil, translate(err, msgDutyNotFound, "complete duty")
	}

	s.logTransition(ctx, models.TransitionComplete, d, actor)
	s.notifier.NotifyAdmins(ctx, notifmodels.TypeDutyCompleted,
		fmt.Sprintf("%s completed duty: %s", s.actorName(ctx, actor), d.Title),
		map[string]string{"dutyId": d.ID.String(), "evidenceUrl": url})
	return d, nil
}

// Approve moves a PENDING_APPROVAL duty to APPROVED.
func (s *Service) Approve(ctx context.Context, actor models.Actor, dutyID id.DutyID) (approved *models.Duty, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "approve", attribute.String("duty_id", dutyID.String()))
	defer func() {
		s.observe(models.TransitionApprove, err, start)
		endSpan(span, err)
	}()

	if err = actor.RequireAdmin(); err != nil {
		return nil, err
	}
	d, err := s.review(ctx, actor, dutyID, models.TransitionApprove, models.CommentApproved)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, d.AssigneeID, notifmodels.TypeDutyApproved,
		fmt.Sprintf("Your duty %q was approved by admin", d.Title),
		map[string]string{"dutyId": d.ID.String()})
	return d, nil
}

// Reject moves a duty to REJECTED; reason is required and recorded in the history.
func (s *Service) Reject(ctx context.Context, actor models.Actor, dutyID id.DutyID, reason string) (rejected *models.Duty, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "reject", attribute.String("duty_id", dutyID.String()))
	defer func() {
		s.observe(models.TransitionReject, err, start)
		endSpan(span, err)
	}()

	if err = actor.RequireAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	d, err := s.review(ctx, actor, dutyID, models.TransitionReject, reason)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, d.AssigneeID, notifmodels.TypeDutyRejected,
		fmt.Sprintf("Your duty %q was rejected: %s", d.Title, reason),
		map[string]string{"dutyId": d.ID.String()})
	return d, nil
}

// review applies an admin decision: load, policy check, commit.
func (s *Service) review(ctx context.Context, actor models.Actor, dutyID id.DutyID, t models.Transition, comment string) (*models.Duty, error) {
	unlock, err := s.lock(ctx, dutyID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := s.duties.FindByID(ctx, dutyID)
	if err != nil {
		return nil, translate(err, msgDutyNotFound, "load duty")
	}
	if err := s.policy.Check(t, d); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	d.Status = t.Target()
	d.UpdatedAt = now
	if err := s.commit(ctx, d, actor.ID, comment, now); err != nil {
		return nil, translate(err, msgDutyNotFound, string(t)+" duty")
	}
	s.logTransition(ctx, t, d, actor)
	return d, nil
}

// commit saves d and appends its history entry in one unit of work.
func (s *Service) commit(ctx context.Context, d *models.Duty, actor id.UserID, comment string, now time.Time) error {
	return s.tx.RunInTx(withTxDuty(ctx, d.ID), func(ctx context.Context, stores TxStores) error {
		if err := stores.Duties.Save(ctx, d); err != nil {
			return err
		}
		return appendEntry(ctx, stores.History, d, actor, comment, now)
	})
}

// appendEntry links the new entry to the duty's latest one. Callers write the duty
// row first so concurrent units of work on the same duty queue behind its row lock.
func appendEntry(ctx context.Context, history HistoryStore, d *models.Duty, actor id.UserID, comment string, now time.Time) error {
	prev := ""
	last, err := history.Last(ctx, d.ID)
	switch {
	case err == nil:
		prev = last.Hash
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return err
	}
	return history.Append(ctx, models.NewHistoryEntry(d.ID, d.Status, actor, comment, prev, now))
}

func (s *Service) discardEvidence(ctx context.Context, url string) {
	if err := s.evidence.Delete(context.WithoutCancel(ctx), url); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementEvidenceCleanupFailures()
		}
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to remove orphaned evidence",
				"evidence_url", url,
				"error", err,
			)
		}
	}
}

func (s *Service) actorName(ctx context.Context, actor models.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	u, err := s.users.FindByID(ctx, actor.ID)
	if err != nil {
		return "A household member"
	}
	return u.DisplayName()
}
