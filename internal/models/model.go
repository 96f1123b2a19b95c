package models

import "strings"

// AuctionStatus is the lifecycle state of an auction room
type AuctionStatus string

const (
	StatusActive AuctionStatus = "active"
	StatusEnded  AuctionStatus = "ended"
	StatusPaused AuctionStatus = "paused"
)

// Valid reports whether s is one of the known statuses
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusEnded, StatusPaused:
		return true
	}
	return false
}

// UserIdentity is the authenticated user as supplied by the identity provider
type UserIdentity struct {
	UserID       string `json:"userId"`
	BusinessName string `json:"businessName,omitempty"`
	Name         string `json:"name,omitempty"`
	CompanyName  string `json:"companyName,omitempty"`
	Email        string `json:"email,omitempty"`
}

// DisplayName picks the first populated of business name, personal name and company name
func (u UserIdentity) DisplayName() string {
	for _, name := range []string{u.BusinessName, u.Name, u.CompanyName} {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return "Anonymous"
}

// AuctionRoom is the realtime record of one live auction stored at auctions/{auctionId}.
// Timestamps are milliseconds since the epoch as assigned by the store.
type AuctionRoom struct {
	AuctionID         string                   `json:"auctionId"`
	ProductID         string                   `json:"productId,omitempty"`
	Title             string                   `json:"title,omitempty"`
	Status            AuctionStatus            `json:"status"`
	StartTime         int64                    `json:"startTime,omitempty"`
	EndTime           int64                    `json:"endTime,omitempty"`
	StartingBid       float64                  `json:"startingBid"`
	CurrentHighestBid float64                  `json:"currentHighestBid"`
	TotalBids         int                      `json:"totalBids"`
	HighestBidID      string                   `json:"highestBidId,omitempty"`
	HighestBidderID   string                   `json:"highestBidderId,omitempty"`
	LastBidAt         int64                    `json:"lastBidAt,omitempty"`
	CreatedAt         int64                    `json:"createdAt,omitempty"`
	Bids              map[string]Bid           `json:"bids,omitempty"`
	Activity          map[string]ActivityEntry `json:"activity,omitempty"`
	Participants      map[string]Participant   `json:"participants,omitempty"`
}

// Summary returns the room without its nested collections
func (a AuctionRoom) Summary() AuctionRoom {
	a.Bids = nil
	a.Activity = nil
	a.Participants = nil
	return a
}

// Bid is an immutable entry of the bid ledger. IsWinning records that the bid
// was the highest one at the moment it was written.
type Bid struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
	IsWinning bool    `json:"isWinning"`
}

// Participant is the presence record of a user
type Participant struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	JoinedAt  int64  `json:"joinedAt,omitempty"`
	LastSeen  int64  `json:"lastSeen,omitempty"`
	IsOnline  bool   `json:"isOnline"`
	TotalBids int    `json:"totalBids"`
	// SessionID is the connection whose drop marks the participant offline
	SessionID string `json:"sessionId,omitempty"`
}

// ActivityType classifies activity feed entries
type ActivityType string

const (
	ActivityBid          ActivityType = "bid"
	ActivityJoin         ActivityType = "join"
	ActivityLeave        ActivityType = "leave"
	ActivityStatusChange ActivityType = "status_change"
)

// ActivityEntry is one human readable event of an activity stream. ID is shared by
// the copies of one event written to several streams; Key is the store key of this copy.
type ActivityEntry struct {
	Key       string         `json:"-"`
	ID        string         `json:"id"`
	Type      ActivityType   `json:"type"`
	AuctionID string         `json:"auctionId,omitempty"`
	UserID    string         `json:"userId"`
	UserName  string         `json:"userName"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
