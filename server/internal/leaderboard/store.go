package leaderboard

import (
	"sort"
	"sync"
)

// Store maps offer IDs to their Boards. The map lock is only held to find or
// create a board; submissions then lock the board alone.
type Store struct {
	mu       sync.RWMutex
	boards   map[int]*Board
	capacity int
}

// New creates a Store whose boards retain at most capacity entries.
// A capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		boards:   make(map[int]*Board),
		capacity: capacity,
	}
}

// Capacity returns the per-board entry bound.
func (s *Store) Capacity() int { return s.capacity }

// Submit records stake for customerID on offerID, creating the offer's board
// if this is its first stake.
func (s *Store) Submit(offerID, customerID, stake int) Result {
	return s.board(offerID).Submit(customerID, stake)
}

// Snapshot returns the offer's entries in descending stake order. An offer
// that never received a stake yields an empty, non-nil slice.
func (s *Store) Snapshot(offerID int) []Entry {
	s.mu.RLock()
	b, ok := s.boards[offerID]
	s.mu.RUnlock()
	if !ok {
		return []Entry{}
	}
	return b.Snapshot()
}

// Count returns the number of offers that have a board.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.boards)
}

// Offers returns the IDs of all offers with a board, ascending.
func (s *Store) Offers() []int {
	s.mu.RLock()
	out := make([]int, 0, len(s.boards))
	for id := range s.boards {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Ints(out)
	return out
}

// board returns the offer's board, creating it on first use. Two callers
// racing on a new offer always end up with the same board.
func (s *Store) board(offerID int) *Board {
	s.mu.RLock()
	b, ok := s.boards[offerID]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.boards[offerID]; ok {
		return b
	}
	b = newBoard(s.capacity)
	s.boards[offerID] = b
	return b
}
