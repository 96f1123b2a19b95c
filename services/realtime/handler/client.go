package handler

import (
	"context"
	"sync"
	"time"

	"aarath-auction/internal/biddingerrors"
	"aarath-auction/internal/liveview"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/services/realtime/helpers"
	"aarath-auction/utils"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// client is one websocket connection. subs and joined are owned by the read loop.
type client struct {
	h    *WSHandler
	conn *websocket.Conn
	sess *realtime.Session
	user *model.UserIdentity

	ctx    context.Context
	cancel context.CancelFunc

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	subs   map[string]realtime.Unsubscribe
	joined map[string]bool
}

func newClient(h *WSHandler, conn *websocket.Conn, user *model.UserIdentity) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		h:      h,
		conn:   conn,
		sess:   h.service.NewSession(),
		user:   user,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		subs:   make(map[string]realtime.Unsubscribe),
		joined: make(map[string]bool),
	}
}

func (c *client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.heartbeat()
		return c.conn.SetReadDeadline(time.Now().Add(c.h.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.Warn("ws: connection lost", map[string]any{"session_id": c.sess.ID, "error": err.Error()})
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.h.pongWait))

		var frame helpers.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(helpers.ErrorFrame("", helpers.BadFrame("undecodable frame: %v", err)))
			continue
		}
		c.handle(frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.h.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// teardown releases every subscription and runs the session's disconnect hooks
func (c *client) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)
		for id, unsub := range c.subs {
			unsub()
			delete(c.subs, id)
		}
		c.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := c.sess.Disconnect(ctx); err != nil {
			utils.Warn("ws: disconnect hooks failed", map[string]any{"session_id": c.sess.ID, "error": err.Error()})
		}
		_ = c.conn.Close()

		utils.Info("ws: client disconnected", map[string]any{
			"session_id": c.sess.ID,
			"user_id":    c.user.UserID,
			"auctions":   len(c.joined),
		})
	})
}

// reply queues a frame. A client that does not drain its queue is dropped.
func (c *client) reply(frame helpers.ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		utils.Error("ws: encode frame", map[string]any{"session_id": c.sess.ID, "type": frame.Type, "error": err.Error()})
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		utils.Warn("ws: send queue full, dropping client", map[string]any{"session_id": c.sess.ID})
		_ = c.conn.Close()
	}
}

// heartbeat refreshes lastSeen of every auction the client joined
func (c *client) heartbeat() {
	c.sess.Touch()
	for auctionID := range c.joined {
		if err := c.h.service.TouchPresence(c.ctx, auctionID, c.user.UserID); err != nil {
			utils.Debug("ws: presence touch failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
	}
}

func (c *client) handle(f helpers.ClientFrame) {
	data, err := c.dispatch(f)
	if err != nil {
		c.reply(helpers.ErrorFrame(f.ID, err))
		fields := map[string]any{"session_id": c.sess.ID, "op": f.Op, "auction_id": f.AuctionID, "error": err.Error()}
		if biddingerrors.IsDomain(err) {
			utils.Debug("ws: request rejected", fields)
		} else {
			utils.Warn("ws: request failed", fields)
		}
		return
	}
	c.reply(helpers.Ack(f.ID, data))
}

func (c *client) dispatch(f helpers.ClientFrame) (any, error) {
	svc := c.h.service

	switch f.Op {
	case helpers.OpInit:
		if len(f.Payload) == 0 {
			return nil, helpers.BadFrame("init requires a payload")
		}
		var payload model.AuctionPayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			return nil, helpers.BadFrame("init payload: %v", err)
		}
		if _, err := svc.InitializeAuctionRoom(c.ctx, payload); err != nil {
			return nil, err
		}
		return map[string]any{"auctionId": payload.AuctionKey()}, nil

	case helpers.OpJoin:
		ok, err := svc.JoinAuctionRoom(c.ctx, c.sess, f.AuctionID, c.user)
		if err != nil {
			return nil, err
		}
		c.joined[f.AuctionID] = true
		return map[string]any{"auctionId": f.AuctionID, "joined": ok}, nil

	case helpers.OpLeave:
		svc.LeaveAuctionRoom(c.ctx, c.sess, f.AuctionID, c.user)
		delete(c.joined, f.AuctionID)
		return map[string]any{"auctionId": f.AuctionID}, nil

	case helpers.OpBid:
		bidID, err := svc.PlaceBid(c.ctx, f.AuctionID, f.Amount, c.user)
		if err != nil {
			return nil, err
		}
		return map[string]any{"auctionId": f.AuctionID, "bidId": bidID, "amount": f.Amount}, nil

	case helpers.OpSubscribe:
		return c.subscribe(f)

	case helpers.OpUnsubscribe:
		unsub, ok := c.subs[f.SubID]
		if !ok {
			return nil, helpers.BadFrame("unknown subscription %q", f.SubID)
		}
		delete(c.subs, f.SubID)
		unsub()
		return map[string]any{"subId": f.SubID}, nil

	case helpers.OpPing:
		c.heartbeat()
		return map[string]any{"serverTime": time.Now().UnixMilli()}, nil

	default:
		return nil, helpers.BadFrame("unknown op %q", f.Op)
	}
}

// subscribe registers a listener that forwards every change as an event frame.
// The first event may arrive before the ack.
func (c *client) subscribe(f helpers.ClientFrame) (any, error) {
	subID := f.SubID
	if subID == "" {
		subID = utils.PrefixedID("sub")
	}
	if _, dup := c.subs[subID]; dup {
		return nil, helpers.BadFrame("subscription %q already exists", subID)
	}

	emit := func(data any) { c.reply(helpers.Event(subID, f.Topic, data)) }
	svc := c.h.service

	var (
		unsub realtime.Unsubscribe
		err   error
	)
	switch f.Topic {
	case helpers.TopicAuction:
		unsub, err = svc.SubscribeToAuction(f.AuctionID, func(room model.AuctionRoom) { emit(room) })
	case helpers.TopicBids:
		unsub, err = svc.SubscribeToBids(f.AuctionID, func(bids []model.Bid) { emit(bids) })
	case helpers.TopicParticipants:
		unsub, err = svc.SubscribeToParticipants(f.AuctionID, func(ps []model.Participant) { emit(ps) })
	case helpers.TopicActivity:
		unsub, err = svc.SubscribeToActivity(f.AuctionID, func(entries []model.ActivityEntry) { emit(entries) })
	case helpers.TopicGlobalActivity:
		unsub, err = svc.SubscribeToGlobalActivity(func(entries []model.ActivityEntry) { emit(entries) })
	case helpers.TopicStats:
		var view *liveview.AuctionView
		view, err = liveview.NewAuctionView(svc, f.AuctionID,
			liveview.WithMinIncrement(svc.MinIncrementPercent()),
			liveview.WithOnChange(func(s liveview.State) { emit(s.Stats) }))
		if err == nil {
			unsub = view.Close
		}
	default:
		return nil, helpers.BadFrame("unknown topic %q", f.Topic)
	}
	if err != nil {
		return nil, err
	}

	c.subs[subID] = unsub
	return map[string]any{"subId": subID, "topic": f.Topic}, nil
}
