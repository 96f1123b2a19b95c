package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	mu      sync.Mutex
	scopes  []string
	entries []model.ActivityEntry
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, scope string, entries []model.ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.scopes = append(a.scopes, scope)
	a.entries = append(a.entries, entries...)
	return nil
}

func newStore(t *testing.T) *realtime.MemoryStore {
	t.Helper()
	store := realtime.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestScope(t *testing.T) {
	t.Parallel()

	require.True(t, Global.IsGlobal())
	require.Equal(t, "activities", Global.Path())
	require.Equal(t, "global", Global.String())
	require.Equal(t, "auctions/a1/activity", Auction("a1").Path())
	require.Equal(t, "auction:a1", Auction("a1").String())
}

// global feed after a join by Alice and a bid of 500 by Bob
func TestLog_GlobalFeedOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewLog(newStore(t))

	_, err := log.Add(ctx, Global, JoinEntry("a1", "alice", "Alice"))
	require.NoError(t, err)
	require.NoError(t, log.Publish(ctx, BidEntry("a1", "b1", "bob", "Bob", 500), Global, Auction("a1")))

	feed, err := log.Recent(ctx, Global, DefaultWindow)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, model.ActivityBid, feed[0].Type)
	require.Equal(t, "Bob", feed[0].UserName)
	require.Equal(t, 500.0, feed[0].Data["bidAmount"])
	require.Equal(t, "Bob placed a bid of ₹500.00", feed[0].Message)
	require.Equal(t, model.ActivityJoin, feed[1].Type)
	require.Greater(t, feed[0].Timestamp, feed[1].Timestamp)
	require.NotEmpty(t, feed[0].Key)

	auctionFeed, err := log.Recent(ctx, Auction("a1"), DefaultWindow)
	require.NoError(t, err)
	require.Len(t, auctionFeed, 1)
	require.Equal(t, feed[0].ID, auctionFeed[0].ID, "copies of one event share the id")
	require.Equal(t, "a1", auctionFeed[0].AuctionID)
}

func TestLog_RetentionTrimsAndArchives(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	archiver := &recordingArchiver{}
	log := NewLog(newStore(t), WithRetention(5), WithArchiver(archiver))

	for i := 0; i < 8; i++ {
		_, err := log.Add(ctx, Auction("a1"), JoinEntry("a1", fmt.Sprintf("u%d", i), fmt.Sprintf("User %d", i)))
		require.NoError(t, err)
	}

	entries, err := log.Recent(ctx, Auction("a1"), 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	require.Equal(t, "u7", entries[0].UserID)
	require.Equal(t, "u3", entries[4].UserID)

	require.Len(t, archiver.entries, 3)
	require.Equal(t, "u0", archiver.entries[0].UserID)
	require.Equal(t, []string{"auction:a1", "auction:a1", "auction:a1"}, archiver.scopes)
}

// entries are kept when archiving fails
func TestLog_ArchiveFailureKeepsEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewLog(newStore(t), WithRetention(2), WithArchiver(&recordingArchiver{err: errors.New("db down")}))
	for i := 0; i < 4; i++ {
		_, err := log.Add(ctx, Global, JoinEntry("a1", fmt.Sprintf("u%d", i), "x"))
		require.NoError(t, err)
	}
	entries, err := log.Recent(ctx, Global, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)
}

func TestLog_AddStoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := realtime.NewMockStore(ctrl)
	// one push from Add, one per scope from Publish
	store.EXPECT().Push(gomock.Any(), "activities", gomock.Any()).Return("", errors.New("timeout")).Times(3)

	log := NewLog(store)
	_, err := log.Add(context.Background(), Global, JoinEntry("a1", "u1", "Ali"))
	require.Error(t, err)

	err = log.Publish(context.Background(), JoinEntry("a1", "u1", "Ali"), Global, Global)
	require.Error(t, err)
}

func TestLog_Subscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewLog(newStore(t))

	var mu sync.Mutex
	var last []model.ActivityEntry
	unsubscribe, err := log.Subscribe(Auction("a1"), 2, func(entries []model.ActivityEntry) {
		mu.Lock()
		last = entries
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	for i := 0; i < 3; i++ {
		_, err := log.Add(ctx, Auction("a1"), BidEntry("a1", fmt.Sprintf("b%d", i), "u1", "Ali", float64(100+i)))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2 && last[0].Data["bidAmount"] == 102.0
	}, time.Second, 5*time.Millisecond)
}

func TestMerge(t *testing.T) {
	t.Parallel()

	auction := []model.ActivityEntry{
		{ID: "e1", Timestamp: 10, Message: "bid"},
		{ID: "e3", Timestamp: 30, Message: "join"},
	}
	global := []model.ActivityEntry{
		{ID: "e1", Timestamp: 11, Message: "bid"},
		{ID: "e2", Timestamp: 20, Message: "other auction"},
		{ID: "e4", Timestamp: 5, Message: "old"},
	}

	merged := Merge(3, auction, global)
	require.Len(t, merged, 3)
	require.Equal(t, []string{"e3", "e2", "e1"}, []string{merged[0].ID, merged[1].ID, merged[2].ID})
	require.Equal(t, int64(11), merged[2].Timestamp)

	require.Len(t, Merge(0, auction, global), 4)
	require.Empty(t, Merge(5))
}

// entries written in the same millisecond come back in reverse creation order
func TestNewest_SameTimestampUsesStoreKey(t *testing.T) {
	t.Parallel()

	entries := []model.ActivityEntry{
		{ID: "f3a1", Key: "0000000000000000001", Timestamp: 50},
		{ID: "0b9c", Key: "0000000000000000003", Timestamp: 50},
		{ID: "77de", Key: "0000000000000000002", Timestamp: 50},
		{ID: "zz", Key: "0000000000000000009", Timestamp: 40},
	}

	got := Newest(entries, 0)
	require.Equal(t, []string{"0b9c", "77de", "f3a1", "zz"}, []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestStatusEntry(t *testing.T) {
	t.Parallel()

	e := StatusEntry("a1", model.StatusActive, model.StatusEnded)
	require.Equal(t, model.ActivityStatusChange, e.Type)
	require.Equal(t, "ended", e.Data["to"])
	require.Contains(t, e.Message, "active")
}
