package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/sentinel"
)

const unknownActorName = "Unknown user"

// actorLookupLimit bounds concurrent directory lookups per history read.
const actorLookupLimit = 8

// ListForUser returns the user's duties by due date, unspecified dates last.
func (s *Service) ListForUser(ctx context.Context, userID id.UserID) (list []*models.Duty, err error) {
	ctx, span := s.startSpan(ctx, "list_for_user", attribute.String("user_id", userID.String()))
	defer func() { endSpan(span, err) }()

	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	list, err = s.duties.ListByAssignee(ctx, userID)
	if err != nil {
		return nil, translate(err, "user not found", "list duties")
	}
	return list, nil
}

// GetWithHistory returns the duty with its audit trail in recording order, each
// entry carrying the actor's display name.
func (s *Service) GetWithHistory(ctx context.Context, dutyID id.DutyID) (result *models.DutyWithHistory, err error) {
	ctx, span := s.startSpan(ctx, "get_with_history", attribute.String("duty_id", dutyID.String()))
	defer func() { endSpan(span, err) }()

	var (
		d       *models.Duty
		entries []*models.HistoryEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d, err = s.duties.FindByID(gctx, dutyID)
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.history.ListByDuty(gctx, dutyID)
		return err
	})
	if err = g.Wait(); err != nil {
		return nil, translate(err, msgDutyNotFound, "load duty history")
	}

	names := s.resolveActorNames(ctx, entries)
	views := make([]*models.HistoryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, &models.HistoryView{HistoryEntry: e, ActorName: names[e.ActorID]})
	}

	chainValid := true
	if verr := models.VerifyChain(entries); verr != nil {
		chainValid = false
		if s.metrics != nil {
			s.metrics.IncrementChainInvalid()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "duty history chain verification failed",
				"duty_id", dutyID.String(),
				"error", verr,
			)
		}
	}

	return &models.DutyWithHistory{Duty: d, History: views, ChainValid: chainValid}, nil
}

// resolveActorNames looks up each distinct actor once. Missing users fall back to a
// neutral label; the read never fails on a directory error.
func (s *Service) resolveActorNames(ctx context.Context, entries []*models.HistoryEntry) map[id.UserID]string {
	var actors []id.UserID
	seen := make(map[id.UserID]bool)
	for _, e := range entries {
		if !seen[e.ActorID] {
			seen[e.ActorID] = true
			actors = append(actors, e.ActorID)
		}
	}

	resolved := make([]string, len(actors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(actorLookupLimit)
	for i, actorID := range actors {
		g.Go(func() error {
			resolved[i] = unknownActorName
			u, err := s.users.FindByID(gctx, actorID)
			if err != nil {
				if !errors.Is(err, sentinel.ErrNotFound) && s.logger != nil {
					s.logger.WarnContext(ctx, "actor lookup failed", "actor_id", actorID.String(), "error", err)
				}
				return nil
			}
			resolved[i] = u.DisplayName()
			return nil
		})
	}
	_ = g.Wait()

	names := make(map[id.UserID]string, len(actors))
	for i, actorID := range actors {
		names[actorID] = resolved[i]
	}
	return names
}
