package chat

import (
	"sync"

	"github.com/ItsSitanshu/dhyan.ai/backend/internal/model/chat"
)

// Store holds the ordered turns of the active conversation. The sequence is
// append-only; it is only replaced wholesale by a row loaded from persistence.
//
// A store is unsaved while it holds turns the row does not: after an exchange
// whose save failed or whose tutor call failed. An unsaved store is the source
// of truth and is never overwritten by a load.
type Store struct {
	mu      sync.RWMutex
	turns   []chat.Turn
	busy    bool
	unsaved bool
}

// NewStore returns an empty conversation store.
func NewStore() *Store {
	return &Store{turns: make([]chat.Turn, 0, 16)}
}

// Append adds turn at the end of the sequence.
func (s *Store) Append(turn chat.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()
}

// ReplaceAll swaps in a loaded sequence unconditionally. It is meant for a
// store no other goroutine can see yet.
func (s *Store) ReplaceAll(turns []chat.Turn) {
	s.mu.Lock()
	s.replace(turns)
	s.mu.Unlock()
}

// SyncIdle swaps in a loaded sequence when no tutor request is in flight and
// the store holds nothing unsaved. It reports whether the swap happened.
func (s *Store) SyncIdle(turns []chat.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy || s.unsaved {
		return false
	}
	s.replace(turns)
	return true
}

// BeginWith marks a tutor request in flight and, unless the store holds
// unsaved turns, brings it up to date with loaded. It returns false when a
// request is already in flight; the caller must drop its request.
func (s *Store) BeginWith(loaded []chat.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	if !s.unsaved {
		s.replace(loaded)
	}
	return true
}

// TryBegin marks a tutor request in flight without touching the turns.
func (s *Store) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// End clears the in-flight mark. saved tells whether the row now matches the
// in-memory sequence.
func (s *Store) End(saved bool) {
	s.mu.Lock()
	s.busy = false
	s.unsaved = !saved
	s.mu.Unlock()
}

// Turns returns a copy of the sequence.
func (s *Store) Turns() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Busy reports whether a tutor request is outstanding.
func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

// Unsaved reports whether the store holds turns missing from the row.
func (s *Store) Unsaved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsaved
}

func (s *Store) replace(turns []chat.Turn) {
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	s.turns = copied
}
