package bidding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

// memoryArchive keeps archived entries per scope
type memoryArchive struct {
	mu      sync.Mutex
	entries map[string][]model.ActivityEntry
}

func (a *memoryArchive) Archive(_ context.Context, scope string, entries []model.ActivityEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.entries == nil {
		a.entries = make(map[string][]model.ActivityEntry)
	}
	a.entries[scope] = append(a.entries[scope], entries...)
	return nil
}

func (a *memoryArchive) List(_ context.Context, scope string, limit int) ([]model.ActivityEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]model.ActivityEntry(nil), a.entries[scope]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newService(t *testing.T, opts Options) (*BiddingService, *realtime.MemoryStore) {
	t.Helper()
	store := realtime.NewMemoryStore(realtime.WithMaxRetries(1000))
	t.Cleanup(func() { _ = store.Close() })
	return NewBiddingService(store, opts), store
}

func initRoom(t *testing.T, s *BiddingService, id string, startingBid float64) {
	t.Helper()
	sb := model.FlexNumber(startingBid)
	ok, err := s.InitializeAuctionRoom(context.Background(), model.AuctionPayload{ID: id, StartingBid: &sb})
	require.NoError(t, err)
	require.True(t, ok)
}

var (
	alice = &model.UserIdentity{UserID: "alice", Name: "Alice"}
	bob   = &model.UserIdentity{UserID: "bob", Name: "Bob"}
)

// Tests the main bidding flow through the coordinator
func TestBiddingService_PlaceBid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t, Options{MinIncrementPct: 1})
	initRoom(t, s, "a1", 1000)

	tests := []struct {
		name          string
		auctionID     string
		amount        float64
		user          *model.UserIdentity
		expectedError error
	}{
		{name: "first_bid_at_start", auctionID: "a1", amount: 1000, user: alice},
		{name: "below_increment", auctionID: "a1", amount: 1005, user: bob, expectedError: biddingerrors.ErrBidTooLow},
		{name: "meets_increment", auctionID: "a1", amount: 1010, user: bob},
		{name: "anonymous", auctionID: "a1", amount: 2000, user: nil, expectedError: biddingerrors.ErrUnauthenticated},
		{name: "zero_amount", auctionID: "a1", amount: 0, user: bob, expectedError: biddingerrors.ErrInvalidBid},
		{name: "empty_auction", auctionID: "", amount: 2000, user: bob, expectedError: biddingerrors.ErrMissingAuctionID},
		{name: "path_in_auction_id", auctionID: "a1/bids", amount: 2000, user: bob, expectedError: biddingerrors.ErrValidation},
		{name: "unknown_auction", auctionID: "zz", amount: 2000, user: bob, expectedError: biddingerrors.ErrAuctionNotFound},
	}

	// sequential: each case builds on the previous ledger state
	for _, tc := range tests {
		id, err := s.PlaceBid(ctx, tc.auctionID, tc.amount, tc.user)
		if tc.expectedError != nil {
			require.ErrorIs(t, err, tc.expectedError, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		require.NotEmpty(t, id, tc.name)
	}

	total, err := s.GetTotalBids(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 2, total)

	room, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1010.0, room.CurrentHighestBid)
	require.Equal(t, "bob", room.HighestBidderID)

	minBid, err := s.MinimumNextBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1020.1, minBid)
}

func TestBiddingService_InitializeTwice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t, Options{})
	initRoom(t, s, "a1", 500)

	_, err := s.PlaceBid(ctx, "a1", 500, alice)
	require.NoError(t, err)

	// re-entering the page must not reset live state
	initRoom(t, s, "a1", 100)
	room, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 500.0, room.StartingBid)
	require.Equal(t, 1, room.TotalBids)

	_, err = s.InitializeAuctionRoom(ctx, model.AuctionPayload{})
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	ids, err := s.ListAuctionIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, ids)
}

// Alice joins, Bob bids 500: the global feed shows both, newest first
func TestBiddingService_GlobalFeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := newService(t, Options{})
	initRoom(t, s, "a1", 500)

	_, err := s.JoinAuctionRoom(ctx, realtime.NewSession(store), "a1", alice)
	require.NoError(t, err)
	_, err = s.PlaceBid(ctx, "a1", 500, bob)
	require.NoError(t, err)

	feed, err := s.RecentActivity(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, model.ActivityBid, feed[0].Type)
	require.Equal(t, "Bob", feed[0].UserName)
	require.Equal(t, 500.0, feed[0].Data["bidAmount"])
	require.Equal(t, model.ActivityJoin, feed[1].Type)
	require.Greater(t, feed[0].Timestamp, feed[1].Timestamp)

	auctionFeed, err := s.RecentActivity(ctx, "a1", 1)
	require.NoError(t, err)
	require.Len(t, auctionFeed, 1)
	require.Equal(t, feed[0].ID, auctionFeed[0].ID)
}

// a client that drops without leaving goes offline through its disconnect hooks
func TestBiddingService_DisconnectGoesOffline(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := newService(t, Options{})
	initRoom(t, s, "a1", 100)

	var mu sync.Mutex
	online := map[string]bool{}
	unsubscribe, err := s.SubscribeToParticipants("a1", func(ps []model.Participant) {
		mu.Lock()
		defer mu.Unlock()
		for _, p := range ps {
			online[p.UserID] = p.IsOnline
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	sess := realtime.NewSession(store)
	ok, err := s.JoinAuctionRoom(ctx, sess, "a1", alice)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return online["alice"]
	}, time.Second, 5*time.Millisecond)

	// connection lost, no LeaveAuctionRoom call
	require.NoError(t, sess.Disconnect(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !online["alice"]
	}, time.Second, 5*time.Millisecond)

	n, err := s.OnlineCount(ctx, "a1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBiddingService_JoinAndLeave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, store := newService(t, Options{})
	initRoom(t, s, "a1", 100)

	_, err := s.JoinAuctionRoom(ctx, nil, "missing", alice)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	_, err = s.JoinAuctionRoom(ctx, nil, "a1", nil)
	require.ErrorIs(t, err, biddingerrors.ErrUnauthenticated)

	sess := realtime.NewSession(store)
	_, err = s.JoinAuctionRoom(ctx, sess, "a1", alice)
	require.NoError(t, err)
	require.NoError(t, s.TouchPresence(ctx, "a1", "alice"))

	s.Cleanup(ctx, sess, "a1", alice)
	require.Zero(t, sess.Pending())

	// leave failures are only logged
	s.LeaveAuctionRoom(ctx, sess, "a1", nil)

	n, err := s.OnlineCount(ctx, "a1")
	require.NoError(t, err)
	require.Zero(t, n)

	feed, err := s.RecentActivity(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	require.Equal(t, model.ActivityLeave, feed[0].Type)
}

// unsubscribing twice is safe and stops deliveries
func TestBiddingService_DoubleUnsubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t, Options{})
	initRoom(t, s, "a1", 100)

	var calls atomic.Int64
	unsubscribe, err := s.SubscribeToBids("a1", func([]model.Bid) { calls.Add(1) })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()

	_, err = s.PlaceBid(ctx, "a1", 100, alice)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), calls.Load())
}

func TestBiddingService_Subscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newService(t, Options{ActivityWindow: 2})
	initRoom(t, s, "a1", 100)

	rooms := make(chan model.AuctionRoom, 16)
	unsubRoom, err := s.SubscribeToAuction("a1", func(room model.AuctionRoom) { rooms <- room })
	require.NoError(t, err)
	defer unsubRoom()

	var mu sync.Mutex
	var global []model.ActivityEntry
	unsubGlobal, err := s.SubscribeToGlobalActivity(func(entries []model.ActivityEntry) {
		mu.Lock()
		global = entries
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubGlobal()

	unsubActivity, err := s.SubscribeToActivity("a1", func([]model.ActivityEntry) {})
	require.NoError(t, err)
	defer unsubActivity()

	for _, amount := range []float64{100, 200, 300} {
		_, err := s.PlaceBid(ctx, "a1", amount, bob)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		for {
			select {
			case room := <-rooms:
				if room.TotalBids == 3 {
					return room.Bids == nil && room.CurrentHighestBid == 300
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(global) == 2 && global[0].Data["bidAmount"] == 300.0
	}, time.Second, 5*time.Millisecond, "feeds are bounded to the activity window")

	_, err = s.SubscribeToBids("", func([]model.Bid) {})
	require.ErrorIs(t, err, biddingerrors.ErrMissingAuctionID)
}

func TestBiddingService_StatusAndArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	archive := &memoryArchive{}
	s, _ := newService(t, Options{ActivityRetention: 2, Archive: archive})
	initRoom(t, s, "a1", 100)

	for _, amount := range []float64{100, 110} {
		_, err := s.PlaceBid(ctx, "a1", amount, alice)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetAuctionStatus(ctx, "a1", model.StatusPaused))
	require.NoError(t, s.SetAuctionStatus(ctx, "a1", model.StatusPaused))

	_, err := s.PlaceBid(ctx, "a1", 500, alice)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionClosed)

	live, err := s.RecentActivity(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Equal(t, model.ActivityStatusChange, live[0].Type)

	archived, err := s.ArchivedActivity(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, model.ActivityBid, archived[0].Type)

	count, err := s.GetUserBidCount(ctx, "a1", "alice")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = s.GetUserBidCount(ctx, "a1", "")
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	require.ErrorIs(t, s.SetAuctionStatus(ctx, "a1", "frozen"), biddingerrors.ErrValidation)
}

// store failures surface as ErrStore
func TestBiddingService_StoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cause := errors.New("network unreachable")
	store := realtime.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), "auctions/a1/bids").Return(realtime.Snapshot{}, cause).Times(2)
	store.EXPECT().Get(gomock.Any(), "auctions/a1/status").Return(realtime.Snapshot{}, cause)
	store.EXPECT().Subscribe("activities", gomock.Any()).Return(nil, realtime.ErrClosed)

	s := NewBiddingService(store, Options{})

	_, err := s.GetTotalBids(context.Background(), "a1")
	require.ErrorIs(t, err, biddingerrors.ErrStore)
	require.ErrorIs(t, err, cause)

	_, err = s.GetBids(context.Background(), "a1")
	require.ErrorIs(t, err, biddingerrors.ErrStore)

	_, err = s.JoinAuctionRoom(context.Background(), nil, "a1", alice)
	require.ErrorIs(t, err, biddingerrors.ErrStore)

	_, err = s.SubscribeToGlobalActivity(func([]model.ActivityEntry) {})
	require.ErrorIs(t, err, biddingerrors.ErrStore)

	archived, err := s.ArchivedActivity(context.Background(), "", 10)
	require.NoError(t, err)
	require.Empty(t, archived)
}
