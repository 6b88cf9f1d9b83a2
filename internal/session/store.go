package session

import (
	"sync"

	"voicebot/internal/domain"
)

// Store is the ordered, append-only turn sequence owned by one session.
// Reset replaces the sequence under the write lock, so readers see either the
// full pre-reset history or an empty one.
type Store struct {
	mu    sync.RWMutex
	turns []domain.Turn
	epoch int
}

// NewStore returns an empty store at epoch 0.
func NewStore() *Store {
	return &Store{}
}

// Append adds t to the end of the sequence and returns its position.
func (s *Store) Append(t domain.Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return len(s.turns) - 1
}

// Snapshot returns a copy of the sequence as of the call.
func (s *Store) Snapshot() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Reset clears the sequence and returns the new epoch.
func (s *Store) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.epoch++
	return s.epoch
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Epoch counts how many times the store has been reset.
func (s *Store) Epoch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}
