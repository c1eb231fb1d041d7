// Package store holds the transaction list last fetched for the selected filter.
package store

import (
	"sync"
	"time"

	"moneymanager/internal/core"
)

// Store is replaced wholesale by every accepted fetch. Fetches take a
// generation from Begin and only the most recently issued generation may
// commit, so a late response cannot overwrite newer data.
type Store struct {
	mu        sync.RWMutex
	records   []core.Transaction
	issued    uint64
	committed uint64
	updatedAt time.Time
}

func New() *Store {
	return &Store{}
}

// Begin issues a new generation for a fetch about to start.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Commit replaces the contents when gen is the latest issued generation.
// It reports whether the records were applied.
func (s *Store) Commit(gen uint64, records []core.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.issued || gen <= s.committed {
		return false
	}
	s.records = append([]core.Transaction(nil), records...)
	s.committed = gen
	s.updatedAt = time.Now()
	return true
}

// Snapshot returns a copy of the current records.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.records...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Totals aggregates the current records.
func (s *Store) Totals() core.Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Aggregate(s.records)
}

// UpdatedAt is the time of the last accepted commit, zero before the first.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
