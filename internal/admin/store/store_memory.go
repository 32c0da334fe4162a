package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"intake/internal/solicitud/models"
)

// InMemoryStore is the fallback store used when no redis URL is configured.
// Its content does not survive a restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []models.Application
	ids     IDs
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

func (s *InMemoryStore) Replace(_ context.Context, records []models.Application) error {
	snapshot := slices.Clone(records)

	s.mu.Lock()
	defer s.mu.Unlock()
	carryIDs(s.records, snapshot)
	stamp(&s.ids, s.now(), snapshot)
	s.records = snapshot
	return nil
}

func (s *InMemoryStore) Append(_ context.Context, record models.Application) (models.Application, error) {
	batch := []models.Application{record}
	stamp(&s.ids, s.now(), batch)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, batch[0])
	return batch[0], nil
}

func (s *InMemoryStore) List(_ context.Context) ([]models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) (models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.records, func(r models.Application) bool { return r.ID == id })
	if i < 0 {
		return models.Application{}, ErrNotFound
	}
	removed := s.records[i]
	s.records = slices.Delete(s.records, i, i+1)
	return removed, nil
}
