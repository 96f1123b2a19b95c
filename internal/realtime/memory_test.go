package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	return func() time.Time { return start }
}

// Test Get / Set / Update round trips
func TestMemoryStore_SetGetUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Set(ctx, "auctions/a1", map[string]any{
		"title":       "Wheat 50kg",
		"startingBid": 1000,
		"status":      "active",
	}))

	snap, err := store.Get(ctx, "auctions/a1/startingBid")
	require.NoError(t, err)
	require.True(t, snap.Exists())
	require.Equal(t, 1000.0, snap.Value())

	require.NoError(t, store.Update(ctx, "auctions/a1", map[string]any{
		"status":            "paused",
		"bids/b1/amount":    1200,
		"currentHighestBid": 1200,
	}))

	snap, err = store.Get(ctx, "auctions/a1")
	require.NoError(t, err)
	var room struct {
		Title             string         `json:"title"`
		Status            string         `json:"status"`
		StartingBid       float64        `json:"startingBid"`
		CurrentHighestBid float64        `json:"currentHighestBid"`
		Bids              map[string]any `json:"bids"`
	}
	require.NoError(t, snap.Decode(&room))
	require.Equal(t, "Wheat 50kg", room.Title)
	require.Equal(t, "paused", room.Status)
	require.Equal(t, 1000.0, room.StartingBid)
	require.Equal(t, 1200.0, room.CurrentHighestBid)
	require.Len(t, room.Bids, 1)

	// removing the last child removes the empty parent
	require.NoError(t, Remove(ctx, store, "auctions/a1/bids/b1"))
	snap, err = store.Get(ctx, "auctions/a1/bids")
	require.NoError(t, err)
	require.False(t, snap.Exists())
}

func TestMemoryStore_InvalidPath(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	defer store.Close()

	tests := []string{"auctions/a.1", "auctions/#", "a/$b", "a/[0]"}
	for _, path := range tests {
		path := path
		t.Run(path, func(t *testing.T) {
			t.Parallel()
			_, err := store.Get(context.Background(), path)
			require.ErrorIs(t, err, ErrInvalidPath)
			require.ErrorIs(t, store.Set(context.Background(), path, 1), ErrInvalidPath)
		})
	}
}

func TestMemoryStore_ServerValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(fixedClock(now)))
	defer store.Close()

	require.NoError(t, store.Set(ctx, "meta/counter", Increment(5)))
	require.NoError(t, store.Update(ctx, "meta", map[string]any{
		"counter":   Increment(-2),
		"updatedAt": ServerTimestamp,
	}))

	snap, err := store.Get(ctx, "meta")
	require.NoError(t, err)
	var meta struct {
		Counter   float64 `json:"counter"`
		UpdatedAt int64   `json:"updatedAt"`
	}
	require.NoError(t, snap.Decode(&meta))
	require.Equal(t, 3.0, meta.Counter)
	// the fixed clock is bumped to keep timestamps strictly increasing
	require.GreaterOrEqual(t, meta.UpdatedAt, now.UnixMilli())
}

func TestMemoryStore_PushKeysAreOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	var keys []string
	for i := 0; i < 50; i++ {
		key, err := store.Push(ctx, "activities", map[string]any{"n": i})
		require.NoError(t, err)
		keys = append(keys, key)
	}

	snap, err := store.Get(ctx, "activities")
	require.NoError(t, err)
	children := snap.Children()
	require.Len(t, children, 50)
	for i, child := range children {
		require.Equal(t, keys[i], child.Key())
		var entry struct {
			N int `json:"n"`
		}
		require.NoError(t, child.Decode(&entry))
		require.Equal(t, i, entry.N)
	}
}

// a second writer drawing keys from the same node id never overwrites an entry
func TestMemoryStore_PushSharedNodeID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mine, err := NewKeyGenerator(5)
	require.NoError(t, err)
	theirs, err := NewKeyGenerator(5)
	require.NoError(t, err)

	store := NewMemoryStore(WithKeyGenerator(mine))
	defer store.Close()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := store.Push(ctx, "activities", map[string]any{"n": 2 * i})
		require.NoError(t, err)
		require.False(t, seen[key])
		seen[key] = true

		key, err = pushUnique(ctx, store, theirs, defaultMaxRetries, "activities", map[string]any{"n": 2*i + 1})
		require.NoError(t, err)
		require.False(t, seen[key])
		seen[key] = true
	}

	snap, err := store.Get(ctx, "activities")
	require.NoError(t, err)
	require.Equal(t, 200, snap.NumChildren())
}

// concurrent increments through transactions must never lose an update
func TestMemoryStore_TransactionNoLostUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(WithMaxRetries(1000))
	defer store.Close()

	var wg sync.WaitGroup
	writers := 40
	perWriter := 25
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := AddNumber(ctx, store, "auctionMetadata/totalParticipants", 1)
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snap, err := store.Get(ctx, "auctionMetadata/totalParticipants")
	require.NoError(t, err)
	require.Equal(t, float64(writers*perWriter), snap.Value())
}

func TestMemoryStore_TransactionRetriesOnConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()
	require.NoError(t, store.Set(ctx, "counters/c", 1))

	attempts := 0
	res, err := store.Transaction(ctx, "counters/c", func(current any) (any, error) {
		attempts++
		if attempts == 1 {
			// a competing writer lands while the first attempt is computing
			require.NoError(t, store.Set(ctx, "counters/c", 10))
		}
		n, _ := current.(float64)
		return n + 1, nil
	})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.Equal(t, 2, attempts)
	require.Equal(t, 11.0, res.Snapshot.Value())
}

func TestMemoryStore_TransactionAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()
	require.NoError(t, store.Set(ctx, "auctions/a1/status", "active"))

	res, err := store.Transaction(ctx, "auctions/a1", func(current any) (any, error) {
		if current != nil {
			return nil, ErrAbort
		}
		return map[string]any{"status": "active"}, nil
	})
	require.NoError(t, err)
	require.False(t, res.Committed)
	require.True(t, res.Snapshot.Exists())

	boom := fmt.Errorf("boom")
	_, err = store.Transaction(ctx, "auctions/a1", func(any) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
}

func TestMemoryStore_TransactionTooManyRetries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(WithMaxRetries(3))
	defer store.Close()

	n := 0
	_, err := store.Transaction(ctx, "counters/c", func(any) (any, error) {
		n++
		require.NoError(t, store.Set(ctx, "counters/c", n))
		return n * 100, nil
	})
	require.ErrorIs(t, err, ErrTooManyRetries)
	require.Equal(t, 3, n)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()
	require.NoError(t, store.Set(ctx, "auctions/a1/totalBids", 0))

	var mu sync.Mutex
	var seen []float64
	unsubscribe, err := store.Subscribe("auctions/a1/totalBids", func(s Snapshot) {
		n, _ := s.Value().(float64)
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	require.NoError(t, err)

	last := func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return -1
		}
		return seen[len(seen)-1]
	}

	// current value delivered immediately
	require.Eventually(t, func() bool { return last() == 0 }, time.Second, 5*time.Millisecond)

	// a write to an ancestor is visible
	require.NoError(t, store.Update(ctx, "auctions/a1", map[string]any{"totalBids": 3}))
	require.Eventually(t, func() bool { return last() == 3 }, time.Second, 5*time.Millisecond)

	// an unrelated path does not overlap
	mu.Lock()
	before := len(seen)
	mu.Unlock()
	require.NoError(t, store.Set(ctx, "auctions/a2/totalBids", 9))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, before, len(seen))
	mu.Unlock()

	unsubscribe()
	unsubscribe() // safe no-op

	mu.Lock()
	count := len(seen)
	mu.Unlock()
	require.NoError(t, store.Set(ctx, "auctions/a1/totalBids", 4))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, count, len(seen))
	mu.Unlock()
}

func TestMemoryStore_SubscribeAfterClose(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.Close())

	_, err := store.Subscribe("auctions", func(Snapshot) {})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, store.Set(context.Background(), "a/b", 1), ErrClosed)
}

func TestMemoryStore_SubscribeCoalesces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	var calls atomic.Int64
	var latest atomic.Value
	release := make(chan struct{})
	unsubscribe, err := store.Subscribe("counters", func(s Snapshot) {
		if calls.Add(1) == 1 {
			<-release // hold the first delivery while writes pile up
		}
		if v := s.Child("c").Value(); v != nil {
			latest.Store(v)
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	for i := 1; i <= 100; i++ {
		require.NoError(t, store.Set(ctx, "counters/c", i))
	}
	close(release)

	require.Eventually(t, func() bool { return latest.Load() == 100.0 }, time.Second, 5*time.Millisecond)
	require.Less(t, calls.Load(), int64(100))
}
