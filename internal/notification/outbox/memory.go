// Package outbox queues notifications between the workflow and the relay.
// Claiming marks rows dispatched before they are published, so each notification
// is handed to the broker at most once.
package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"dutyflow/internal/notification/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.Mutex
	items map[id.NotificationID]*models.Notification
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[id.NotificationID]*models.Notification)}
}

func clone(n *models.Notification) *models.Notification {
	cp := *n
	if n.Metadata != nil {
		cp.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (s *InMemory) Enqueue(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[n.ID]; exists {
		return sentinel.ErrConflict
	}
	s.items[n.ID] = clone(n)
	return nil
}

// Claim marks up to limit pending notifications dispatched at now and returns them
// oldest first.
func (s *InMemory) Claim(_ context.Context, limit int, now time.Time) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]*models.Notification, 0)
	for _, n := range s.items {
		if n.DispatchedAt == nil {
			pending = append(pending, n)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID.String() < pending[j].ID.String()
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]*models.Notification, 0, len(pending))
	for _, n := range pending {
		at := now
		n.DispatchedAt = &at
		out = append(out, clone(n))
	}
	return out, nil
}

// MarkFailed records a publish failure on already-claimed notifications.
func (s *InMemory) MarkFailed(_ context.Context, ids []id.NotificationID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, nid := range ids {
		n, ok := s.items[nid]
		if !ok {
			continue
		}
		failedAt := at
		n.FailedAt = &failedAt
		n.LastError = reason
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, nid id.NotificationID) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[nid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(n), nil
}

// Pending counts notifications not yet claimed.
func (s *InMemory) Pending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.items {
		if n.DispatchedAt == nil {
			count++
		}
	}
	return count, nil
}
