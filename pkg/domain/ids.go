// Package domain holds typed identifiers shared across modules.
//
// Each identifier is a distinct named type over uuid.UUID so that a DutyID can never
// be passed where a UserID is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "dutyflow/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	DutyID         uuid.UUID
	HistoryID      uuid.UUID
	NotificationID uuid.UUID
)

func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewDutyID() DutyID                 { return DutyID(uuid.New()) }
func NewHistoryID() HistoryID           { return HistoryID(uuid.New()) }
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id DutyID) String() string         { return uuid.UUID(id).String() }
func (id HistoryID) String() string      { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id DutyID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id HistoryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses a user identifier received at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseDutyID parses a duty identifier received at a trust boundary.
func ParseDutyID(s string) (DutyID, error) {
	u, err := parseUUID(s, "duty ID")
	return DutyID(u), err
}

// ParseNotificationID parses an outbox notification identifier.
func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID(s, "notification ID")
	return NotificationID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
