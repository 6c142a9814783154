package store

import (
	"context"
	"sort"
	"sync"

	"dutyflow/internal/user/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

// InMemory is a map-backed user store for tests and single-process runs.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.UserID]*models.User
	byExternal map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.UserID]*models.User),
		byExternal: make(map[string]id.UserID),
	}
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) FindByExternalID(_ context.Context, externalID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byExternal[externalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[userID]
	return &cp, nil
}

// ListAdmins returns admins ordered by creation time.
func (s *InMemory) ListAdmins(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.byID {
		if u.Role == models.RoleAdmin {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Upsert creates the user or updates the profile of the user with the same external id.
// The stored ID, role and creation time of an existing user are preserved.
func (s *InMemory) Upsert(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Email != "" {
		for _, other := range s.byID {
			if other.Email == user.Email && other.ExternalID != user.ExternalID {
				return nil, sentinel.ErrConflict
			}
		}
	}

	if existingID, ok := s.byExternal[user.ExternalID]; ok {
		existing := s.byID[existingID]
		existing.Name = user.Name
		existing.Email = user.Email
		existing.PictureURL = user.PictureURL
		existing.UpdatedAt = user.UpdatedAt
		cp := *existing
		return &cp, nil
	}

	cp := *user
	s.byID[user.ID] = &cp
	s.byExternal[user.ExternalID] = user.ID
	out := cp
	return &out, nil
}

func (s *InMemory) UpdatePushToken(_ context.Context, userID id.UserID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.PushToken = token
	return nil
}

// UpdateEmail replaces the user's email. An address held by another user is a
// conflict.
func (s *InMemory) UpdateEmail(_ context.Context, userID id.UserID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if email != "" {
		for otherID, other := range s.byID {
			if otherID != userID && other.Email == email {
				return sentinel.ErrConflict
			}
		}
	}
	u.Email = email
	return nil
}

func (s *InMemory) SetRole(_ context.Context, userID id.UserID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.Role = role
	return nil
}
