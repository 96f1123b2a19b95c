// Package wsclient is a Go client of the websocket bidding protocol. Writes issued
// while the connection is down are queued and replayed in issue order after the
// reconnect; subscriptions and joined auctions are re-established first.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/services/realtime/helpers"
	"aarath-auction/utils"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// ErrConnectionLost is returned for requests that were sent but not answered
// before the connection dropped
var ErrConnectionLost = errors.New("wsclient: connection lost before reply")

// ErrClientClosed is returned after Close
var ErrClientClosed = errors.New("wsclient: client closed")

// ServerError is an error reply of the server
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Unwrap maps the reply code back onto the shared error taxonomy
func (e *ServerError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized:
		return biddingerrors.ErrUnauthenticated
	case http.StatusNotFound:
		return biddingerrors.ErrAuctionNotFound
	case http.StatusConflict:
		if e.Message == "bid amount too low" {
			return biddingerrors.ErrBidTooLow
		}
		return biddingerrors.ErrAuctionClosed
	case http.StatusBadRequest:
		return biddingerrors.ErrValidation
	case http.StatusServiceUnavailable:
		return biddingerrors.ErrStore
	}
	return nil
}

// typeLost marks the synthetic reply of a request whose connection dropped
const typeLost = "lost"

// EventHandler receives the data of every event of a subscription
type EventHandler func(data json.RawMessage)

// incoming mirrors helpers.ServerFrame with undecoded data
type incoming struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	SubID string          `json:"subId"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  int             `json:"code"`
}

type subscription struct {
	frame helpers.ClientFrame
	fn    EventHandler
}

// Option configures a Client
type Option func(*Client)

// WithBackoff bounds the delay between reconnect attempts
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.minBackoff, c.maxBackoff = minDelay, maxDelay
	}
}

// WithDialer replaces websocket.DefaultDialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// Client keeps one logical connection across reconnects
type Client struct {
	url        string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the fields below and serializes writes to conn
	mu      sync.Mutex
	conn    *websocket.Conn
	queue   []helpers.ClientFrame
	pending map[string]chan incoming
	subs    map[string]subscription
	joined  map[string]bool
	nextID  uint64
	closed  bool
}

// Dial connects to the websocket endpoint at rawURL authenticating with token
func Dial(ctx context.Context, rawURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("wsclient: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:        u.String(),
		dialer:     websocket.DefaultDialer,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
		ctx:        cctx,
		cancel:     cancel,
		pending:    make(map[string]chan incoming),
		subs:       make(map[string]subscription),
		joined:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("wsclient: dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.run(conn)
	return c, nil
}

// Connected reports whether a connection is currently up
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Queued returns the number of writes waiting for a connection
func (c *Client) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Close stops reconnecting and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

// Init creates the auction room described by payload
func (c *Client) Init(ctx context.Context, payload model.AuctionPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wsclient: encode payload: %w", err)
	}
	_, err = c.Request(ctx, helpers.ClientFrame{Op: helpers.OpInit, Payload: raw})
	return err
}

// Join enters the auction room. The join is repeated after every reconnect.
func (c *Client) Join(ctx context.Context, auctionID string) error {
	c.mu.Lock()
	c.joined[auctionID] = true
	c.mu.Unlock()
	_, err := c.Request(ctx, helpers.ClientFrame{Op: helpers.OpJoin, AuctionID: auctionID})
	if err != nil && !errors.Is(err, ErrConnectionLost) {
		c.mu.Lock()
		delete(c.joined, auctionID)
		c.mu.Unlock()
	}
	return err
}

// Leave exits the auction room
func (c *Client) Leave(ctx context.Context, auctionID string) error {
	c.mu.Lock()
	delete(c.joined, auctionID)
	c.mu.Unlock()
	_, err := c.Request(ctx, helpers.ClientFrame{Op: helpers.OpLeave, AuctionID: auctionID})
	return err
}

// PlaceBid bids amount and returns the bid id
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount float64) (string, error) {
	data, err := c.Request(ctx, helpers.ClientFrame{Op: helpers.OpBid, AuctionID: auctionID, Amount: amount})
	if err != nil {
		return "", err
	}
	var ack struct {
		BidID string `json:"bidId"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return "", fmt.Errorf("wsclient: decode bid ack: %w", err)
	}
	return ack.BidID, nil
}

// Subscribe registers fn for a topic and returns the subscription id. auctionID is
// ignored for the global activity topic.
func (c *Client) Subscribe(ctx context.Context, topic, auctionID string, fn EventHandler) (string, error) {
	frame := helpers.ClientFrame{Op: helpers.OpSubscribe, Topic: topic, AuctionID: auctionID, SubID: utils.PrefixedID("sub")}

	c.mu.Lock()
	c.subs[frame.SubID] = subscription{frame: frame, fn: fn}
	c.mu.Unlock()

	if _, err := c.Request(ctx, frame); err != nil && !errors.Is(err, ErrConnectionLost) {
		c.mu.Lock()
		delete(c.subs, frame.SubID)
		c.mu.Unlock()
		return "", err
	}
	return frame.SubID, nil
}

// Unsubscribe stops a subscription
func (c *Client) Unsubscribe(ctx context.Context, subID string) error {
	c.mu.Lock()
	_, ok := c.subs[subID]
	delete(c.subs, subID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := c.Request(ctx, helpers.ClientFrame{Op: helpers.OpUnsubscribe, SubID: subID})
	return err
}

// Request sends frame and waits for its reply. While disconnected the frame is
// queued; giving up on ctx does not remove it from the queue.
func (c *Client) Request(ctx context.Context, frame helpers.ClientFrame) (json.RawMessage, error) {
	reply := make(chan incoming, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.nextID++
	frame.ID = strconv.FormatUint(c.nextID, 10)
	c.pending[frame.ID] = reply
	if c.conn == nil {
		c.queue = append(c.queue, frame)
	} else if err := c.writeLocked(frame); err != nil {
		// the read loop notices the broken connection and fails the pending request
		utils.Debug("wsclient: write failed", map[string]any{"op": frame.Op, "error": err.Error()})
	}
	c.mu.Unlock()

	select {
	case in := <-reply:
		if in.Type == typeLost {
			return nil, ErrConnectionLost
		}
		if in.Type == helpers.TypeError {
			return nil, &ServerError{Code: in.Code, Message: in.Error}
		}
		return in.Data, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, frame.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClientClosed
	}
}

func (c *Client) writeLocked(frame helpers.ClientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) run(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		c.readLoop(conn)
		c.connectionLost(conn)

		var ok bool
		conn, ok = c.reconnect()
		if !ok {
			return
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in incoming
		if err := json.Unmarshal(data, &in); err != nil {
			utils.Warn("wsclient: undecodable frame", map[string]any{"error": err.Error()})
			continue
		}
		c.dispatch(in)
	}
}

func (c *Client) dispatch(in incoming) {
	c.mu.Lock()
	if in.Type == helpers.TypeEvent {
		sub, ok := c.subs[in.SubID]
		c.mu.Unlock()
		if ok {
			sub.fn(in.Data)
		}
		return
	}
	reply, ok := c.pending[in.ID]
	delete(c.pending, in.ID)
	c.mu.Unlock()
	if ok {
		reply <- in
	}
}

// connectionLost fails every request that is waiting on the dropped connection
func (c *Client) connectionLost(conn *websocket.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = nil

	queued := make(map[string]bool, len(c.queue))
	for _, f := range c.queue {
		queued[f.ID] = true
	}
	for id, reply := range c.pending {
		if queued[id] {
			continue
		}
		delete(c.pending, id)
		reply <- incoming{Type: typeLost, ID: id}
	}
	if !c.closed {
		utils.Warn("wsclient: connection lost, reconnecting", nil)
	}
}

// reconnect dials with exponential backoff until it succeeds or the client is closed
func (c *Client) reconnect() (*websocket.Conn, bool) {
	delay := c.minBackoff
	for {
		select {
		case <-c.ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		conn, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			utils.Debug("wsclient: reconnect failed", map[string]any{"delay": delay.String(), "error": err.Error()})
			delay = min(2*delay, c.maxBackoff)
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		c.conn = conn
		err = c.restoreLocked()
		c.mu.Unlock()
		if err != nil {
			utils.Warn("wsclient: restore after reconnect failed", map[string]any{"error": err.Error()})
		} else {
			utils.Info("wsclient: reconnected", nil)
		}
		return conn, true
	}
}

// restoreLocked rejoins auctions, re-subscribes and then replays the queue in order.
// Joins and subscriptions that are still queued are left to the replay.
func (c *Client) restoreLocked() error {
	queuedJoins := make(map[string]bool)
	queuedSubs := make(map[string]bool)
	for _, f := range c.queue {
		switch f.Op {
		case helpers.OpJoin:
			queuedJoins[f.AuctionID] = true
		case helpers.OpSubscribe:
			queuedSubs[f.SubID] = true
		}
	}

	for auctionID := range c.joined {
		if queuedJoins[auctionID] {
			continue
		}
		if err := c.writeLocked(helpers.ClientFrame{Op: helpers.OpJoin, AuctionID: auctionID}); err != nil {
			return err
		}
	}
	for id, sub := range c.subs {
		if queuedSubs[id] {
			continue
		}
		if err := c.writeLocked(sub.frame); err != nil {
			return err
		}
	}
	for len(c.queue) > 0 {
		if err := c.writeLocked(c.queue[0]); err != nil {
			return err
		}
		c.queue = c.queue[1:]
	}
	return nil
}
