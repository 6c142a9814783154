package models

import (
	"strings"
	"time"

	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
)

// Status is the lifecycle state of a duty.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
)

// IsValid reports whether s is one of the four lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPendingApproval, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s under the strict policy.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// DateLayout is the wire format of due dates.
const DateLayout = "2006-01-02"

// Duty is a task assigned to exactly one household member.
type Duty struct {
	ID          id.DutyID
	Title       string
	Description string
	// DueDate is a calendar date at UTC midnight; nil means unspecified.
	DueDate     *time.Time
	Status      Status
	AssigneeID  id.UserID
	EvidenceURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewDuty creates a PENDING duty, enforcing construction invariants.
func NewDuty(dutyID id.DutyID, title, description string, dueDate *time.Time, assignee id.UserID, now time.Time) (*Duty, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if len(title) > 200 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title must be at most 200 characters")
	}
	if len(description) > 4000 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "description must be at most 4000 characters")
	}
	if assignee.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "assignee is required")
	}
	var due *time.Time
	if dueDate != nil {
		d := time.Date(dueDate.Year(), dueDate.Month(), dueDate.Day(), 0, 0, 0, 0, time.UTC)
		due = &d
	}
	return &Duty{
		ID:          dutyID,
		Title:       title,
		Description: strings.TrimSpace(description),
		DueDate:     due,
		Status:      StatusPending,
		AssigneeID:  assignee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsAssignedTo reports whether userID is the duty's assignee.
func (d *Duty) IsAssignedTo(userID id.UserID) bool {
	return d.AssigneeID == userID
}

// Clone returns a deep copy.
func (d *Duty) Clone() *Duty {
	cp := *d
	if d.DueDate != nil {
		due := *d.DueDate
		cp.DueDate = &due
	}
	return &cp
}

// DueBefore orders duties by due date ascending with unspecified dates last,
// ties broken by creation time then ID.
func DueBefore(a, b *Duty) bool {
	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return false
	case a.DueDate != nil && b.DueDate == nil:
		return true
	case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Before(*b.DueDate)
	case !a.CreatedAt.Equal(b.CreatedAt):
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.ID.String() < b.ID.String()
	}
}

// ParseDueDate parses an optional YYYY-MM-DD date. Empty input yields nil.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "dueDate must be formatted as YYYY-MM-DD")
	}
	return &t, nil
}
