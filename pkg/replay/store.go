// Package replay tracks transaction hashes that already unlocked the
// resource, so the same payment or transfer evidence cannot be presented
// twice.
package replay

import (
	"context"
	"sync"
	"time"
)

// Store records consumed transaction hashes.
// Insert must be atomic: of two concurrent inserts for the same hash,
// exactly one returns true.
type Store interface {
	// Seen reports whether the hash was already consumed.
	Seen(ctx context.Context, txHash string) (bool, error)

	// Insert marks the hash consumed. Returns false if it was already there.
	Insert(ctx context.Context, txHash string) (bool, error)
}

// MemoryStore is a thread-safe in-memory replay store.
// For single-instance deployment. Replace with Redis for multi-instance.
type MemoryStore struct {
	mu   sync.Mutex
	used map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{used: make(map[string]time.Time)}
}

// Seen reports whether the hash was already consumed.
func (s *MemoryStore) Seen(_ context.Context, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.used[txHash]
	return ok, nil
}

// Insert marks the hash consumed, recording the insertion time.
func (s *MemoryStore) Insert(_ context.Context, txHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.used[txHash]; ok {
		return false, nil
	}
	s.used[txHash] = time.Now()
	return true, nil
}

// Len returns the number of consumed hashes.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}
