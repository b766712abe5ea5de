package leaderboard

import (
	"sort"
	"strconv"
	"sync"
)

// DefaultCapacity is the number of entries a board retains.
const DefaultCapacity = 20

// Entry is one customer's stake on an offer.
type Entry struct {
	CustomerID int
	Stake      int
}

// String renders the entry as "customerID=stake".
func (e Entry) String() string {
	return strconv.Itoa(e.CustomerID) + "=" + strconv.Itoa(e.Stake)
}

// Result describes the board right after a submission.
type Result struct {
	// Rank is the 1-based position of the submitted entry, or 0 if the stake
	// was too low to be retained.
	Rank int

	// Size is the number of entries on the board after the submission.
	Size int
}

// Board is a single offer's leaderboard. It is safe for concurrent use.
type Board struct {
	mu       sync.RWMutex
	entries  []Entry // descending by Stake, unique CustomerID, len <= capacity
	capacity int
}

func newBoard(capacity int) *Board {
	return &Board{
		entries:  make([]Entry, 0, capacity+1),
		capacity: capacity,
	}
}

// Submit replaces the customer's entry with stake and re-establishes the
// ordering and capacity invariants under the board lock.
func (b *Board) Submit(customerID, stake int) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.entries {
		if e.CustomerID == customerID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}

	// First entry with a strictly lower stake; equal stakes stay ahead.
	pos := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Stake < stake
	})
	if pos >= b.capacity {
		return Result{Size: len(b.entries)}
	}

	b.entries = append(b.entries, Entry{})
	copy(b.entries[pos+1:], b.entries[pos:])
	b.entries[pos] = Entry{CustomerID: customerID, Stake: stake}

	if len(b.entries) > b.capacity {
		b.entries = b.entries[:b.capacity]
	}
	return Result{Rank: pos + 1, Size: len(b.entries)}
}

// Snapshot returns a copy of the entries in descending stake order.
func (b *Board) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
