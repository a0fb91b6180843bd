package balance

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[string]*Snapshot
	credits  map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*Snapshot),
		credits:  make(map[string]struct{}),
	}
}

// ApplyCredit implements Store.
func (s *MemoryStore) ApplyCredit(_ context.Context, credit Credit) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.credits[credit.AuthorizationID]; seen {
		return false, nil
	}
	s.credits[credit.AuthorizationID] = struct{}{}

	snap, ok := s.balances[credit.CustomerID]
	if !ok {
		snap = &Snapshot{CustomerID: credit.CustomerID}
		s.balances[credit.CustomerID] = snap
	}
	snap.Tokens += credit.Tokens
	snap.UpdatedAt = credit.AppliedAt
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	return true, nil
}

// Balance implements Store.
func (s *MemoryStore) Balance(_ context.Context, customerID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.balances[customerID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return *snap, nil
}

// SetAutoTopUp implements Store.
func (s *MemoryStore) SetAutoTopUp(_ context.Context, customerID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.balances[customerID]
	if !ok {
		snap = &Snapshot{CustomerID: customerID, UpdatedAt: time.Now()}
		s.balances[customerID] = snap
	}
	snap.AutoTopUp = enabled
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
