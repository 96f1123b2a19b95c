package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"aarath-auction/internal/auth"
	bidding "aarath-auction/internal/biddingService"
	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	wshandler "aarath-auction/services/realtime/handler"
	"aarath-auction/services/realtime/helpers"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc   *bidding.BiddingService
	url   string
	token string
	open  *atomic.Bool
}

// newFixture serves the websocket endpoint behind a gate that can refuse handshakes
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := realtime.NewMemoryStore(realtime.WithMaxRetries(1000))
	svc := bidding.NewBiddingService(store, bidding.Options{MinIncrementPct: 1})
	verifier := auth.NewVerifier("client-secret")
	ws := wshandler.NewWSHandler(svc, verifier, 0)

	open := &atomic.Bool{}
	open.Store(true)

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		if !open.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		ws.ServeWS(c)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})

	token, err := verifier.Issue(model.UserIdentity{UserID: "buyer-1", CompanyName: "Mandi Co"}, time.Hour)
	require.NoError(t, err)

	sb := model.FlexNumber(100)
	_, err = svc.InitializeAuctionRoom(context.Background(), model.AuctionPayload{ID: "a1", StartingBid: &sb})
	require.NoError(t, err)

	return &fixture{
		svc:   svc,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		token: token,
		open:  open,
	}
}

func (f *fixture) dial(t *testing.T) *Client {
	t.Helper()
	cl, err := Dial(context.Background(), f.url, f.token, WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

// dropConnection kills the transport without a close handshake
func dropConnection(cl *Client) {
	cl.mu.Lock()
	conn := cl.conn
	cl.mu.Unlock()
	if conn != nil {
		_ = conn.UnderlyingConn().Close()
	}
}

func online(svc *bidding.BiddingService, want int) func() bool {
	return func() bool {
		n, err := svc.OnlineCount(context.Background(), "a1")
		return err == nil && n == want
	}
}

func TestClient_ErrorsMapToTaxonomy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cl := f.dial(t)
	ctx := context.Background()

	_, err := cl.PlaceBid(ctx, "nope", 500)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	_, err = cl.PlaceBid(ctx, "a1", 99)
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, http.StatusConflict, serverErr.Code)

	_, err = cl.Subscribe(ctx, "weather", "a1", func(json.RawMessage) {})
	require.ErrorIs(t, err, biddingerrors.ErrValidation)

	_, err = Dial(ctx, f.url, "forged")
	require.Error(t, err)
}

func TestClient_RequestsAndEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cl := f.dial(t)
	ctx := context.Background()

	sb := model.FlexNumber(10)
	require.NoError(t, cl.Init(ctx, model.AuctionPayload{ID: "a2", StartingBid: &sb}))

	events := make(chan []model.Bid, 16)
	subID, err := cl.Subscribe(ctx, helpers.TopicBids, "a2", func(data json.RawMessage) {
		var bids []model.Bid
		if json.Unmarshal(data, &bids) == nil {
			events <- bids
		}
	})
	require.NoError(t, err)

	bidID, err := cl.PlaceBid(ctx, "a2", 10)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case bids := <-events:
				if len(bids) == 1 && bids[0].ID == bidID {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, cl.Unsubscribe(ctx, subID))
	require.NoError(t, cl.Unsubscribe(ctx, subID))

	require.NoError(t, cl.Close())
	_, err = cl.PlaceBid(ctx, "a2", 20)
	require.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_OfflineQueueReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cl := f.dial(t)
	ctx := context.Background()

	require.NoError(t, cl.Join(ctx, "a1"))
	require.Eventually(t, online(f.svc, 1), 5*time.Second, 10*time.Millisecond)

	var seen atomic.Int64
	_, err := cl.Subscribe(ctx, helpers.TopicBids, "a1", func(data json.RawMessage) {
		var bids []model.Bid
		if json.Unmarshal(data, &bids) == nil {
			seen.Store(int64(len(bids)))
		}
	})
	require.NoError(t, err)

	f.open.Store(false)
	dropConnection(cl)
	require.Eventually(t, func() bool { return !cl.Connected() }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, online(f.svc, 0), 5*time.Second, 10*time.Millisecond)

	type result struct {
		id  string
		err error
	}
	results := make(chan result, 2)
	bid := func(amount float64) {
		id, err := cl.PlaceBid(ctx, "a1", amount)
		results <- result{id, err}
	}

	go bid(100)
	require.Eventually(t, func() bool { return cl.Queued() == 1 }, 5*time.Second, 5*time.Millisecond)
	go bid(200)
	require.Eventually(t, func() bool { return cl.Queued() == 2 }, 5*time.Second, 5*time.Millisecond)

	f.open.Store(true)

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			require.NoError(t, r.err)
			require.NotEmpty(t, r.id)
		case <-time.After(5 * time.Second):
			t.Fatal("queued bid was not replayed")
		}
	}
	require.Equal(t, 0, cl.Queued())

	bids, err := f.svc.GetBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.ElementsMatch(t, []float64{100, 200}, []float64{bids[0].Amount, bids[1].Amount})
	require.Equal(t, "Mandi Co", bids[0].UserName)

	require.Eventually(t, online(f.svc, 1), 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return seen.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
}
