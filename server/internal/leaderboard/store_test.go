package leaderboard

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDescending(t *testing.T, entries []Entry) {
	t.Helper()
	for i := 1; i < len(entries); i++ {
		if entries[i].Stake > entries[i-1].Stake {
			t.Fatalf("entries not descending at %d: %v", i, entries)
		}
	}
}

func assertUniqueCustomers(t *testing.T, entries []Entry) {
	t.Helper()
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if seen[e.CustomerID] {
			t.Fatalf("customer %d appears twice: %v", e.CustomerID, entries)
		}
		seen[e.CustomerID] = true
	}
}

func TestSnapshot_UnknownOfferIsEmpty(t *testing.T) {
	st := New(DefaultCapacity)

	got := st.Snapshot(42)
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, st.Count(), "snapshot must not create a board")
}

func TestSubmit_ReplacesByIdentity(t *testing.T) {
	st := New(DefaultCapacity)
	st.Submit(100, 1, 50)
	st.Submit(100, 2, 80)
	st.Submit(100, 1, 30)

	want := []Entry{{CustomerID: 2, Stake: 80}, {CustomerID: 1, Stake: 30}}
	if diff := cmp.Diff(want, st.Snapshot(100)); diff != "" {
		t.Errorf("Snapshot(100) mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_ResubmitKeepsSingleEntry(t *testing.T) {
	st := New(DefaultCapacity)
	st.Submit(7, 1, 5)
	st.Submit(7, 1, 9)

	got := st.Snapshot(7)
	require.Len(t, got, 1)
	assert.Equal(t, Entry{CustomerID: 1, Stake: 9}, got[0])
}

func TestSubmit_BoundedToCapacity(t *testing.T) {
	st := New(DefaultCapacity)
	for c := 1; c <= 25; c++ {
		st.Submit(1, c, c*10)
	}

	got := st.Snapshot(1)
	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, Entry{CustomerID: 25, Stake: 250}, got[0])
	assert.Equal(t, Entry{CustomerID: 6, Stake: 60}, got[len(got)-1])
	for _, e := range got {
		assert.Greater(t, e.CustomerID, 5, "lowest five stakes must be evicted")
	}
	assertDescending(t, got)
}

func TestSubmit_Result(t *testing.T) {
	st := New(3)

	assert.Equal(t, Result{Rank: 1, Size: 1}, st.Submit(1, 1, 10))
	assert.Equal(t, Result{Rank: 1, Size: 2}, st.Submit(1, 2, 20))
	assert.Equal(t, Result{Rank: 3, Size: 3}, st.Submit(1, 3, 5))
	// Too low to make the board: not retained, size unchanged.
	assert.Equal(t, Result{Rank: 0, Size: 3}, st.Submit(1, 4, 1))
	// Pushes customer 3 off the board.
	assert.Equal(t, Result{Rank: 2, Size: 3}, st.Submit(1, 5, 15))

	want := []Entry{{2, 20}, {5, 15}, {1, 10}}
	if diff := cmp.Diff(want, st.Snapshot(1)); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_LowerResubmitStaysOnFullBoard(t *testing.T) {
	st := New(2)
	st.Submit(1, 1, 100)
	st.Submit(1, 2, 50)
	// Board is full and 40 is below the cut-off.
	assert.Equal(t, Result{Rank: 0, Size: 2}, st.Submit(1, 3, 40))

	// Customer 1 lowers their stake below customer 3's rejected one: their own
	// slot frees up first, so they stay on the board.
	assert.Equal(t, Result{Rank: 2, Size: 2}, st.Submit(1, 1, 10))

	want := []Entry{{2, 50}, {1, 10}}
	if diff := cmp.Diff(want, st.Snapshot(1)); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_NonPositiveStakes(t *testing.T) {
	st := New(DefaultCapacity)
	st.Submit(1, 1, 0)
	st.Submit(1, 2, -5)
	st.Submit(1, 3, 3)

	want := []Entry{{3, 3}, {1, 0}, {2, -5}}
	if diff := cmp.Diff(want, st.Snapshot(1)); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	st := New(DefaultCapacity)
	st.Submit(1, 1, 10)
	st.Submit(1, 2, 20)

	snap := st.Snapshot(1)
	snap[0] = Entry{CustomerID: 99, Stake: 999}
	assert.Equal(t, Entry{CustomerID: 2, Stake: 20}, st.Snapshot(1)[0], "mutating a snapshot leaked into the store")

	before := st.Snapshot(1)
	st.Submit(1, 3, 30)
	assert.Equal(t, []Entry{{2, 20}, {1, 10}}, before, "later submit changed an earlier snapshot")
}

func TestSubmit_OffersAreIsolated(t *testing.T) {
	st := New(DefaultCapacity)
	st.Submit(1, 1, 10)
	st.Submit(2, 1, 99)

	assert.Equal(t, []Entry{{1, 10}}, st.Snapshot(1))
	assert.Equal(t, []Entry{{1, 99}}, st.Snapshot(2))
	assert.Equal(t, []int{1, 2}, st.Offers())
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, 5, New(5).Capacity())
}

func TestEntry_String(t *testing.T) {
	assert.Equal(t, "12=-3", Entry{CustomerID: 12, Stake: -3}.String())
}

// referenceSubmit is the straightforward remove, append, stable sort,
// truncate rendition the board must agree with, tie order included.
func referenceSubmit(entries []Entry, capacity, customerID, stake int) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	for _, e := range entries {
		if e.CustomerID != customerID {
			out = append(out, e)
		}
	}
	out = append(out, Entry{CustomerID: customerID, Stake: stake})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stake > out[j].Stake })
	if len(out) > capacity {
		out = out[:capacity]
	}
	return out
}

func TestSubmit_RandomSequenceMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	st := New(DefaultCapacity)
	ref := []Entry{}

	for i := 0; i < 5000; i++ {
		c, s := rng.Intn(60), rng.Intn(200)
		st.Submit(1, c, s)
		ref = referenceSubmit(ref, DefaultCapacity, c, s)

		got := st.Snapshot(1)
		if diff := cmp.Diff(ref, got); diff != "" {
			t.Fatalf("step %d: submit(%d, %d) diverged (-want +got):\n%s", i, c, s, diff)
		}
	}

	got := st.Snapshot(1)
	require.Len(t, got, DefaultCapacity)
	assertDescending(t, got)
	assertUniqueCustomers(t, got)
}

func TestConcurrentSubmits_SameOffer(t *testing.T) {
	st := New(DefaultCapacity)
	var wg sync.WaitGroup

	for c := 0; c < 100; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for s := 0; s < 20; s++ {
				st.Submit(1, c, c*100+s)
			}
		}(c)
	}
	wg.Wait()

	got := st.Snapshot(1)
	require.Len(t, got, DefaultCapacity)
	assertDescending(t, got)
	assertUniqueCustomers(t, got)
	// Each goroutine's final submit is its highest, so the top 20 customers win.
	for i, e := range got {
		assert.Equal(t, Entry{CustomerID: 99 - i, Stake: (99-i)*100 + 19}, e)
	}
}

func TestConcurrentSubmitsAndSnapshots(t *testing.T) {
	st := New(DefaultCapacity)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			st.Submit(n%3, n, n)
		}(i)
		go func(n int) {
			defer wg.Done()
			snap := st.Snapshot(n % 3)
			if len(snap) > DefaultCapacity {
				t.Errorf("snapshot exceeded capacity: %d", len(snap))
			}
			for j := 1; j < len(snap); j++ {
				if snap[j].Stake > snap[j-1].Stake {
					t.Errorf("snapshot not descending at %d: %v", j, snap)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, st.Count(), "concurrent first submits created duplicate boards")
}

func TestStandings(t *testing.T) {
	got := Standings([]Entry{{2, 80}, {1, 30}})
	want := []Standing{
		{Rank: 1, CustomerID: 2, Stake: 80},
		{Rank: 2, CustomerID: 1, Stake: 30},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Standings mismatch (-want +got):\n%s", diff)
	}
	assert.NotNil(t, Standings(nil))
}
