package models

import (
	"strings"
	"time"

	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
)

// Role is a user's capability level within the household.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleMember
}

// User is a household member known to the system. ExternalID is the stable subject
// issued by the identity provider.
type User struct {
	ID         id.UserID
	ExternalID string
	Name       string
	Email      string
	PictureURL string
	PushToken  string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsAdmin reports whether the user may create and review duties.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName falls back to the email, then to a neutral label.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case strings.TrimSpace(u.Name) != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return "A household member"
	}
}

// NewUser creates a user, enforcing construction invariants.
func NewUser(userID id.UserID, externalID, name, email string, role Role, now time.Time) (*User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "external id is required")
	}
	if role == "" {
		role = RoleMember
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role")
	}
	return &User{
		ID:         userID,
		ExternalID: externalID,
		Name:       strings.TrimSpace(name),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Role:       role,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
