package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"aarath-auction/internal/auth"
	bidding "aarath-auction/internal/biddingService"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/services/realtime/helpers"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsFixture struct {
	svc      *bidding.BiddingService
	verifier *auth.Verifier
	srv      *httptest.Server
}

func newFixture(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := realtime.NewMemoryStore(realtime.WithMaxRetries(1000))
	svc := bidding.NewBiddingService(store, bidding.Options{MinIncrementPct: 1})
	verifier := auth.NewVerifier("ws-secret")

	router := gin.New()
	router.GET("/ws", NewWSHandler(svc, verifier, 0).ServeWS)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return &wsFixture{svc: svc, verifier: verifier, srv: srv}
}

func (f *wsFixture) dial(t *testing.T, user model.UserIdentity) *websocket.Conn {
	t.Helper()
	token, err := f.verifier.Issue(user, time.Hour)
	require.NoError(t, err)

	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// readUntil skips frames until match accepts one
func readUntil(t *testing.T, conn *websocket.Conn, match func(helpers.ServerFrame) bool) helpers.ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame helpers.ServerFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		if match(frame) {
			return frame
		}
	}
}

func reply(id string) func(helpers.ServerFrame) bool {
	return func(f helpers.ServerFrame) bool {
		return f.ID == id && (f.Type == helpers.TypeAck || f.Type == helpers.TypeError)
	}
}

var (
	farmer = model.UserIdentity{UserID: "farmer-1", BusinessName: "Green Farms"}
	trader = model.UserIdentity{UserID: "trader-1", Name: "Ravi"}
)

func TestServeWS_RejectsHandshakeWithoutToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer not-a-token"}}
	_, resp, err = websocket.DefaultDialer.Dial(u, header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_BiddingFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := f.dial(t, farmer)

	send(t, conn, map[string]any{"id": "1", "op": "init", "payload": map[string]any{"_id": "a1", "startingBid": "1,000"}})
	ack := readUntil(t, conn, reply("1"))
	require.Equal(t, helpers.TypeAck, ack.Type)
	require.Equal(t, "a1", ack.Data.(map[string]any)["auctionId"])

	send(t, conn, map[string]any{"id": "2", "op": "join", "auctionId": "a1"})
	ack = readUntil(t, conn, reply("2"))
	require.Equal(t, helpers.TypeAck, ack.Type)
	require.Equal(t, true, ack.Data.(map[string]any)["joined"])

	send(t, conn, map[string]any{"id": "3", "op": "subscribe", "topic": "bids", "auctionId": "a1", "subId": "bids-a1"})
	send(t, conn, map[string]any{"id": "4", "op": "bid", "auctionId": "a1", "amount": 1000})

	ack = readUntil(t, conn, reply("4"))
	require.Equal(t, helpers.TypeAck, ack.Type)
	require.NotEmpty(t, ack.Data.(map[string]any)["bidId"])

	event := readUntil(t, conn, func(fr helpers.ServerFrame) bool {
		if fr.Type != helpers.TypeEvent || fr.SubID != "bids-a1" {
			return false
		}
		bids, _ := fr.Data.([]any)
		return len(bids) == 1
	})
	bid := event.Data.([]any)[0].(map[string]any)
	require.Equal(t, "farmer-1", bid["userId"])
	require.Equal(t, "Green Farms", bid["userName"])
	require.Equal(t, 1000.0, bid["amount"])

	send(t, conn, map[string]any{"id": "5", "op": "bid", "auctionId": "a1", "amount": 1005})
	errFrame := readUntil(t, conn, reply("5"))
	require.Equal(t, helpers.TypeError, errFrame.Type)
	require.Equal(t, http.StatusConflict, errFrame.Code)
	require.Equal(t, "bid amount too low", errFrame.Error)

	room, err := f.svc.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, 1, room.TotalBids)
	require.Equal(t, 1000.0, room.CurrentHighestBid)
}

func TestServeWS_StatsSubscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sb := model.FlexNumber(100)
	_, err := f.svc.InitializeAuctionRoom(ctx, model.AuctionPayload{ID: "a1", StartingBid: &sb})
	require.NoError(t, err)

	conn := f.dial(t, trader)
	send(t, conn, map[string]any{"id": "1", "op": "subscribe", "topic": "stats", "auctionId": "a1"})
	ack := readUntil(t, conn, reply("1"))
	require.Equal(t, helpers.TypeAck, ack.Type)
	subID := ack.Data.(map[string]any)["subId"].(string)
	require.NotEmpty(t, subID)

	_, err = f.svc.PlaceBid(ctx, "a1", 200, &farmer)
	require.NoError(t, err)

	event := readUntil(t, conn, func(fr helpers.ServerFrame) bool {
		if fr.SubID != subID {
			return false
		}
		stats := fr.Data.(map[string]any)
		return stats["totalBids"] == 1.0 && stats["uniqueBidders"] == 1.0
	})
	require.Equal(t, helpers.TopicStats, event.Topic)
	require.Equal(t, 200.0, event.Data.(map[string]any)["highestBid"])
	require.Equal(t, 202.0, event.Data.(map[string]any)["minimumNextBid"])

	send(t, conn, map[string]any{"id": "2", "op": "unsubscribe", "subId": subID})
	require.Equal(t, helpers.TypeAck, readUntil(t, conn, reply("2")).Type)

	send(t, conn, map[string]any{"id": "3", "op": "unsubscribe", "subId": subID})
	require.Equal(t, http.StatusBadRequest, readUntil(t, conn, reply("3")).Code)
}

func TestServeWS_DisconnectMarksOffline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	sb := model.FlexNumber(100)
	_, err := f.svc.InitializeAuctionRoom(ctx, model.AuctionPayload{ID: "a1", StartingBid: &sb})
	require.NoError(t, err)

	conn := f.dial(t, trader)
	send(t, conn, map[string]any{"id": "1", "op": "join", "auctionId": "a1"})
	require.Equal(t, helpers.TypeAck, readUntil(t, conn, reply("1")).Type)

	n, err := f.svc.OnlineCount(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	send(t, conn, map[string]any{"id": "2", "op": "ping"})
	require.Equal(t, helpers.TypeAck, readUntil(t, conn, reply("2")).Type)

	// drop the TCP connection without a close handshake
	require.NoError(t, conn.UnderlyingConn().Close())

	require.Eventually(t, func() bool {
		n, err := f.svc.OnlineCount(ctx, "a1")
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServeWS_BadFrames(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := f.dial(t, farmer)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":`)))
	frame := readUntil(t, conn, func(fr helpers.ServerFrame) bool { return fr.Type == helpers.TypeError })
	require.Equal(t, http.StatusBadRequest, frame.Code)

	tests := []struct {
		name  string
		frame map[string]any
		code  int
	}{
		{name: "unknown_op", frame: map[string]any{"op": "dance"}, code: http.StatusBadRequest},
		{name: "unknown_topic", frame: map[string]any{"op": "subscribe", "topic": "weather"}, code: http.StatusBadRequest},
		{name: "init_without_payload", frame: map[string]any{"op": "init"}, code: http.StatusBadRequest},
		{name: "join_missing_room", frame: map[string]any{"op": "join", "auctionId": "nope"}, code: http.StatusNotFound},
		{name: "join_reserved_id", frame: map[string]any{"op": "join", "auctionId": "a/b"}, code: http.StatusBadRequest},
		{name: "bid_missing_room", frame: map[string]any{"op": "bid", "auctionId": "nope", "amount": 10}, code: http.StatusNotFound},
	}
	for _, tc := range tests {
		tc.frame["id"] = tc.name
		send(t, conn, tc.frame)
		frame := readUntil(t, conn, reply(tc.name))
		require.Equal(t, helpers.TypeError, frame.Type, tc.name)
		require.Equal(t, tc.code, frame.Code, tc.name)
	}

	send(t, conn, map[string]any{"id": "subscribe_dup_1", "op": "subscribe", "topic": "globalActivity", "subId": "g"})
	require.Equal(t, helpers.TypeAck, readUntil(t, conn, reply("subscribe_dup_1")).Type)
	send(t, conn, map[string]any{"id": "subscribe_dup_2", "op": "subscribe", "topic": "globalActivity", "subId": "g"})
	require.Equal(t, http.StatusBadRequest, readUntil(t, conn, reply("subscribe_dup_2")).Code)
}
