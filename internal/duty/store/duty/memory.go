package duty

import (
	"context"
	"sort"
	"sync"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

// InMemory is a map-backed duty store. Values are cloned on the way in and out so
// callers never share state with the store.
type InMemory struct {
	mu     sync.RWMutex
	duties map[id.DutyID]*models.Duty
}

func NewInMemory() *InMemory {
	return &InMemory{duties: make(map[id.DutyID]*models.Duty)}
}

func (s *InMemory) Create(_ context.Context, d *models.Duty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.duties[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.duties[d.ID] = d.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, dutyID id.DutyID) (*models.Duty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.duties[dutyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

// ListByAssignee returns the assignee's duties by due date, unspecified dates last.
func (s *InMemory) ListByAssignee(_ context.Context, assignee id.UserID) ([]*models.Duty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Duty, 0)
	for _, d := range s.duties {
		if d.AssigneeID == assignee {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return models.DueBefore(out[i], out[j]) })
	return out, nil
}

// Save upserts d by ID.
func (s *InMemory) Save(_ context.Context, d *models.Duty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duties[d.ID] = d.Clone()
	return nil
}
