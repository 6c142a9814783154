package history

import (
	"context"
	"sync"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

// InMemory is an append-only history store. Entries are kept per duty in
// insertion order; there is no update or delete path.
type InMemory struct {
	mu      sync.RWMutex
	entries map[id.DutyID][]models.HistoryEntry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[id.DutyID][]models.HistoryEntry)}
}

func (s *InMemory) Append(_ context.Context, e *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries[e.DutyID] {
		if existing.ID == e.ID {
			return sentinel.ErrConflict
		}
	}
	s.entries[e.DutyID] = append(s.entries[e.DutyID], *e)
	return nil
}

func (s *InMemory) ListByDuty(_ context.Context, dutyID id.DutyID) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[dutyID]
	out := make([]*models.HistoryEntry, len(src))
	for i := range src {
		e := src[i]
		out[i] = &e
	}
	return out, nil
}

func (s *InMemory) Last(_ context.Context, dutyID id.DutyID) (*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[dutyID]
	if len(src) == 0 {
		return nil, sentinel.ErrNotFound
	}
	e := src[len(src)-1]
	return &e, nil
}
