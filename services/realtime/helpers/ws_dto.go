package helpers

import json "github.com/goccy/go-json"

// Client operations
const (
	OpInit        = "init"
	OpJoin        = "join"
	OpLeave       = "leave"
	OpBid         = "bid"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

// Subscription topics
const (
	TopicAuction        = "auction"
	TopicBids           = "bids"
	TopicParticipants   = "participants"
	TopicActivity       = "activity"
	TopicGlobalActivity = "globalActivity"
	TopicStats          = "stats"
)

// Server frame types
const (
	TypeAck   = "ack"
	TypeError = "error"
	TypeEvent = "event"
)

// ClientFrame is a request sent by the browser. ID is echoed in the reply.
type ClientFrame struct {
	ID        string          `json:"id,omitempty"`
	Op        string          `json:"op"`
	AuctionID string          `json:"auctionId,omitempty"`
	Amount    float64         `json:"amount,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	SubID     string          `json:"subId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerFrame is an ack, an error reply or a subscription event
type ServerFrame struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	SubID string `json:"subId,omitempty"`
	Topic string `json:"topic,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}
