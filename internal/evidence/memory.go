package evidence

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// InMemory keeps uploads in a map. Used by tests and local runs without a disk.
type InMemory struct {
	mu      sync.Mutex
	baseURL string
	limits  Limits
	objects map[string][]byte
}

func NewInMemory(baseURL string, limits Limits) *InMemory {
	return &InMemory{baseURL: baseURL, limits: limits, objects: make(map[string][]byte)}
}

func (s *InMemory) Upload(ctx context.Context, f File) (string, error) {
	if err := s.limits.Check(f); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(f.Body)
	if err != nil {
		return "", fmt.Errorf("read evidence: %w", err)
	}
	key := NewKey(f.Name)
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return s.baseURL + "/" + key, nil
}

func (s *InMemory) Delete(_ context.Context, url string) error {
	key, ok := KeyFromURL(s.baseURL, url)
	if !ok {
		return nil
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Get returns the stored bytes for url.
func (s *InMemory) Get(url string) ([]byte, bool) {
	key, ok := KeyFromURL(s.baseURL, url)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// Len reports how many objects are stored.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
