package models

import (
	"time"

	id "dutyflow/pkg/domain"
)

// CreateDutyRequest carries the fields an admin supplies when assigning a duty.
type CreateDutyRequest struct {
	Title       string
	Description string
	DueDate     *time.Time
	AssigneeID  id.UserID
}

// Default history comments.
const (
	CommentCreated   = "Duty created"
	CommentCompleted = "Duty completed, pending approval"
	CommentApproved  = "Duty approved by admin"
)
