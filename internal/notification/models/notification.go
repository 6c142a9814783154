package models

import (
	"time"

	id "dutyflow/pkg/domain"
)

// Type classifies a notification for clients and routing.
type Type string

const (
	TypeDutyAssigned  Type = "DUTY_ASSIGNED"
	TypeDutyCompleted Type = "DUTY_COMPLETED"
	TypeDutyApproved  Type = "DUTY_APPROVED"
	TypeDutyRejected  Type = "DUTY_REJECTED"
)

// Notification is one queued message for one recipient.
type Notification struct {
	ID           id.NotificationID
	RecipientID  id.UserID
	ExternalID   string
	PushToken    string
	Type         Type
	Message      string
	Metadata     map[string]string
	CreatedAt    time.Time
	DispatchedAt *time.Time
	FailedAt     *time.Time
	LastError    string
}

// Message is the serialized form published to the broker.
type Message struct {
	ID          string            `json:"id"`
	RecipientID string            `json:"recipientId"`
	ExternalID  string            `json:"externalId,omitempty"`
	PushToken   string            `json:"pushToken,omitempty"`
	Type        Type              `json:"type"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// ToMessage builds the broker payload. Title is the notification type, matching
// what push clients display as the heading.
func (n *Notification) ToMessage() Message {
	return Message{
		ID:          n.ID.String(),
		RecipientID: n.RecipientID.String(),
		ExternalID:  n.ExternalID,
		PushToken:   n.PushToken,
		Type:        n.Type,
		Title:       string(n.Type),
		Body:        n.Message,
		Data:        n.Metadata,
		CreatedAt:   n.CreatedAt,
	}
}
