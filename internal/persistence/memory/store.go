// Package memory keeps study activities in process memory for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"example.com/studystreak/internal/domain"
)

// Store is a mutex-guarded map keyed by ActivityKey.
type Store struct {
	mu      sync.RWMutex
	records map[domain.ActivityKey]domain.ActivityRecord
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[domain.ActivityKey]domain.ActivityRecord)}
}

// Upsert implements domain.ActivityStore.
func (s *Store) Upsert(ctx context.Context, record domain.ActivityRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &domain.StorageError{Op: "upsert", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record.ActivityDate = domain.DateOf(record.ActivityDate)
	key := record.Key()
	existing, ok := s.records[key]
	if !ok {
		s.records[key] = record
		return true, nil
	}
	existing.ActivityType = record.ActivityType
	existing.TextID = record.TextID
	existing.UpdatedAt = record.UpdatedAt
	s.records[key] = existing
	return false, nil
}

// ListDistinctDates implements domain.ActivityStore.
func (s *Store) ListDistinctDates(ctx context.Context, userID string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list distinct dates", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dates := make([]time.Time, 0)
	for key := range s.records {
		if key.UserID == userID {
			dates = append(dates, key.Date)
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return b.Compare(a) })
	return dates, nil
}

// Get returns a copy of the stored record for key.
func (s *Store) Get(key domain.ActivityKey) (domain.ActivityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[domain.NewActivityKey(key.UserID, key.Date)]
	return record, ok
}
