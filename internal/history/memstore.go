package history

import (
	"context"
	"sync"
)

// defaultMaxTurns bounds the in-memory log so an unattended conversation
// running for hours cannot grow without limit.
const defaultMaxTurns = 1000

// MemStore is an in-memory [Store]. It retains at most a fixed number of
// turns, evicting the oldest. Safe for concurrent use.
type MemStore struct {
	mu       sync.RWMutex
	turns    []Turn
	maxTurns int
}

// NewMemStore creates an in-memory store retaining at most maxTurns turns.
// Zero or negative maxTurns uses the default of 1000.
func NewMemStore(maxTurns int) *MemStore {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &MemStore{maxTurns: maxTurns}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	if len(s.turns) > s.maxTurns {
		// Copy forward so evicted turns do not pin the backing array.
		fresh := make([]Turn, s.maxTurns)
		copy(fresh, s.turns[len(s.turns)-s.maxTurns:])
		s.turns = fresh
	}
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out, nil
}
