package liveview

import (
	"sync"
	"time"

	"aarath-auction/internal/activity"
	"aarath-auction/internal/ledger"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
)

// Source is the subscription side of the bidding coordinator
type Source interface {
	SubscribeToAuction(auctionID string, fn func(model.AuctionRoom)) (realtime.Unsubscribe, error)
	SubscribeToBids(auctionID string, fn func([]model.Bid)) (realtime.Unsubscribe, error)
	SubscribeToParticipants(auctionID string, fn func([]model.Participant)) (realtime.Unsubscribe, error)
	SubscribeToActivity(auctionID string, fn func([]model.ActivityEntry)) (realtime.Unsubscribe, error)
	SubscribeToGlobalActivity(fn func([]model.ActivityEntry)) (realtime.Unsubscribe, error)
}

// Stats are the aggregates shown next to a live auction
type Stats struct {
	TotalBids          int       `json:"totalBids"`
	HighestBid         float64   `json:"highestBid"`
	MinimumNextBid     float64   `json:"minimumNextBid"`
	UniqueBidders      int       `json:"uniqueBidders"`
	OnlineParticipants int       `json:"onlineParticipants"`
	AverageBid         float64   `json:"averageBid"`
	Countdown          Countdown `json:"countdown"`
}

// State is everything a live auction page renders
type State struct {
	Room         model.AuctionRoom   `json:"room"`
	Bids         []model.Bid         `json:"bids"`
	Participants []model.Participant `json:"participants"`
	Stats        Stats               `json:"stats"`
}

// AuctionView keeps the latest room, bids and participants of one auction
type AuctionView struct {
	auctionID string
	minPct    float64
	now       func() time.Time

	mu           sync.Mutex
	room         model.AuctionRoom
	bids         []model.Bid
	participants []model.Participant
	onChange     func(State)

	closeOnce sync.Once
	unsubs    []realtime.Unsubscribe
}

// Option configures an AuctionView
type Option func(*AuctionView)

// WithMinIncrement sets the percentage used for the minimum next bid
func WithMinIncrement(pct float64) Option {
	return func(v *AuctionView) { v.minPct = pct }
}

// WithClock overrides the clock used for the countdown
func WithClock(now func() time.Time) Option {
	return func(v *AuctionView) { v.now = now }
}

// WithOnChange installs the change callback before the first value can arrive
func WithOnChange(fn func(State)) Option {
	return func(v *AuctionView) { v.onChange = fn }
}

// NewAuctionView subscribes to the auction, its bids and its participants
func NewAuctionView(src Source, auctionID string, opts ...Option) (*AuctionView, error) {
	v := &AuctionView{
		auctionID: auctionID,
		minPct:    ledger.DefaultMinIncrementPercent,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	subscribe := []func() (realtime.Unsubscribe, error){
		func() (realtime.Unsubscribe, error) {
			return src.SubscribeToAuction(auctionID, func(room model.AuctionRoom) {
				v.update(func() { v.room = room })
			})
		},
		func() (realtime.Unsubscribe, error) {
			return src.SubscribeToBids(auctionID, func(bids []model.Bid) {
				v.update(func() { v.bids = bids })
			})
		},
		func() (realtime.Unsubscribe, error) {
			return src.SubscribeToParticipants(auctionID, func(ps []model.Participant) {
				v.update(func() { v.participants = ps })
			})
		},
	}
	for _, sub := range subscribe {
		unsub, err := sub()
		if err != nil {
			v.Close()
			return nil, err
		}
		v.mu.Lock()
		v.unsubs = append(v.unsubs, unsub)
		v.mu.Unlock()
	}
	return v, nil
}

// OnChange sets the callback run after every update
func (v *AuctionView) OnChange(fn func(State)) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *AuctionView) update(apply func()) {
	v.mu.Lock()
	apply()
	state := v.stateLocked()
	fn := v.onChange
	v.mu.Unlock()

	if fn != nil {
		fn(state)
	}
}

// Snapshot returns the current state
func (v *AuctionView) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *AuctionView) stateLocked() State {
	return State{
		Room:         v.room,
		Bids:         append([]model.Bid(nil), v.bids...),
		Participants: append([]model.Participant(nil), v.participants...),
		Stats:        ComputeStats(v.room, v.bids, v.participants, v.minPct, v.now()),
	}
}

// Close releases every subscription. Calling it again is a no-op.
func (v *AuctionView) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		unsubs := v.unsubs
		v.unsubs = nil
		v.onChange = nil
		v.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
	})
}

// ComputeStats derives the auction aggregates
func ComputeStats(room model.AuctionRoom, bids []model.Bid, participants []model.Participant, minPct float64, now time.Time) Stats {
	stats := Stats{
		TotalBids:      room.TotalBids,
		HighestBid:     room.CurrentHighestBid,
		MinimumNextBid: ledger.MinimumNextBid(room, minPct),
		Countdown:      TimeLeft(room.EndTime, now),
	}

	bidders := make(map[string]struct{})
	var sum float64
	for _, b := range bids {
		bidders[b.UserID] = struct{}{}
		sum += b.Amount
	}
	stats.UniqueBidders = len(bidders)
	if len(bids) > 0 {
		stats.AverageBid = sum / float64(len(bids))
	}

	for _, p := range participants {
		if p.IsOnline {
			stats.OnlineParticipants++
		}
	}
	return stats
}

// ActivityFeed merges the activity of one auction with the global stream
type ActivityFeed struct {
	n  int
	fn func([]model.ActivityEntry)

	mu      sync.Mutex
	auction []model.ActivityEntry
	global  []model.ActivityEntry
	merged  []model.ActivityEntry

	closeOnce sync.Once
	unsubs    []realtime.Unsubscribe
}

// NewActivityFeed subscribes to both streams and calls fn with at most n merged
// entries, newest first, after every change. fn may be nil.
func NewActivityFeed(src Source, auctionID string, n int, fn func([]model.ActivityEntry)) (*ActivityFeed, error) {
	f := &ActivityFeed{n: n, fn: fn}

	unsubAuction, err := src.SubscribeToActivity(auctionID, func(entries []model.ActivityEntry) {
		f.update(func() { f.auction = entries })
	})
	if err != nil {
		return nil, err
	}
	unsubGlobal, err := src.SubscribeToGlobalActivity(func(entries []model.ActivityEntry) {
		f.update(func() { f.global = entries })
	})
	if err != nil {
		unsubAuction()
		return nil, err
	}

	f.mu.Lock()
	f.unsubs = []realtime.Unsubscribe{unsubAuction, unsubGlobal}
	f.mu.Unlock()
	return f, nil
}

func (f *ActivityFeed) update(apply func()) {
	f.mu.Lock()
	apply()
	f.merged = activity.Merge(f.n, f.auction, f.global)
	merged := append([]model.ActivityEntry(nil), f.merged...)
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		fn(merged)
	}
}

// Entries returns the current merged feed
func (f *ActivityFeed) Entries() []model.ActivityEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ActivityEntry(nil), f.merged...)
}

// Close releases both subscriptions. Calling it again is a no-op.
func (f *ActivityFeed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		unsubs := f.unsubs
		f.unsubs = nil
		f.fn = nil
		f.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
	})
}
