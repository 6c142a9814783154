package models

import (
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
)

// Transition names one of the four workflow operations.
type Transition string

const (
	TransitionCreate   Transition = "create"
	TransitionComplete Transition = "complete"
	TransitionApprove  Transition = "approve"
	TransitionReject   Transition = "reject"
)

// Target returns the status a transition moves a duty into.
func (t Transition) Target() Status {
	switch t {
	case TransitionComplete:
		return StatusPendingApproval
	case TransitionApprove:
		return StatusApproved
	case TransitionReject:
		return StatusRejected
	default:
		return StatusPending
	}
}

// TransitionPolicy decides which source states each transition accepts.
type TransitionPolicy string

const (
	// PolicyStrict: complete only from PENDING, approve and reject only from
	// PENDING_APPROVAL. APPROVED and REJECTED are terminal.
	PolicyStrict TransitionPolicy = "strict"
	// PolicyLenient: complete and reject from any state, approve still requires
	// PENDING_APPROVAL.
	PolicyLenient TransitionPolicy = "lenient"
)

// ParsePolicy maps a configuration value to a policy, defaulting to strict.
func ParsePolicy(s string) TransitionPolicy {
	if TransitionPolicy(s) == PolicyLenient {
		return PolicyLenient
	}
	return PolicyStrict
}

// Allows reports whether t may be applied to a duty currently in from.
func (p TransitionPolicy) Allows(t Transition, from Status) bool {
	switch t {
	case TransitionApprove:
		return from == StatusPendingApproval
	case TransitionComplete:
		if p == PolicyLenient {
			return true
		}
		return from == StatusPending
	case TransitionReject:
		if p == PolicyLenient {
			return true
		}
		return from == StatusPendingApproval
	default:
		return false
	}
}

// Check returns an InvalidState error when t is not allowed from the duty's status.
func (p TransitionPolicy) Check(t Transition, d *Duty) error {
	if p.Allows(t, d.Status) {
		return nil
	}
	switch t {
	case TransitionApprove, TransitionReject:
		return dErrors.New(dErrors.CodeInvalidState, "duty is not in pending approval state")
	case TransitionComplete:
		return dErrors.New(dErrors.CodeInvalidState, "duty is not pending")
	default:
		return dErrors.New(dErrors.CodeInvalidState, "transition not allowed")
	}
}

// Actor is the capability passed to every mutating operation: who is acting and
// whether they hold the admin role.
type Actor struct {
	ID    id.UserID
	Name  string
	Admin bool
}

// RequireAdmin fails with Forbidden for non-admin actors.
func (a Actor) RequireAdmin() error {
	if a.ID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !a.Admin {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	return nil
}
