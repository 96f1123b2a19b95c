package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"aarath-auction/internal/activity"
	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/repository"
	"aarath-auction/utils"

	"github.com/shopspring/decimal"
)

// DefaultMinIncrementPercent is the minimum raise over the current highest bid
const DefaultMinIncrementPercent = 1.0

// Ledger records bids and keeps the room summary consistent with them
type Ledger struct {
	store    realtime.Store
	repo     repository.AuctionDB
	activity *activity.Log
	keys     *realtime.KeyGenerator
	scope    repository.ParticipantScope
	minPct   float64
	now      func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithMinIncrement sets the minimum raise in percent
func WithMinIncrement(pct float64) Option {
	return func(l *Ledger) { l.minPct = pct }
}

// WithKeyGenerator sets the generator for bid ids
func WithKeyGenerator(keys *realtime.KeyGenerator) Option {
	return func(l *Ledger) { l.keys = keys }
}

// WithParticipantScope selects where per-user bid counters live
func WithParticipantScope(scope repository.ParticipantScope) Option {
	return func(l *Ledger) { l.scope = scope }
}

// WithClock overrides the clock used for the closing time check
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger
func New(store realtime.Store, repo repository.AuctionDB, log *activity.Log, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		repo:     repo,
		activity: log,
		scope:    repository.ParticipantsGlobal,
		minPct:   DefaultMinIncrementPercent,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.keys == nil {
		l.keys, _ = realtime.NewKeyGenerator(0)
	}
	return l
}

// MinimumNextBid is the lowest acceptable amount for the next bid: the starting bid
// while no bids exist, otherwise the current highest bid raised by pct percent and
// rounded up to whole paise.
func MinimumNextBid(room model.AuctionRoom, pct float64) float64 {
	if room.TotalBids == 0 {
		return math.Max(room.StartingBid, room.CurrentHighestBid)
	}
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)))
	next, _ := decimal.NewFromFloat(room.CurrentHighestBid).Mul(factor).RoundCeil(2).Float64()
	return next
}

// MinimumNextBid for the ledger's configured increment
func (l *Ledger) MinimumNextBid(room model.AuctionRoom) float64 {
	return MinimumNextBid(room, l.minPct)
}

// PlaceBid records a bid and updates the room summary in one transaction.
// The bid is rejected when the room is missing or closed, or when amount is below
// the minimum next bid at commit time.
func (l *Ledger) PlaceBid(ctx context.Context, auctionID string, amount float64, user *model.UserIdentity) (string, error) {
	if user == nil || user.UserID == "" {
		return "", fmt.Errorf("ledger: %w", biddingerrors.ErrUnauthenticated)
	}
	if auctionID == "" {
		return "", fmt.Errorf("ledger: %w", biddingerrors.ErrMissingAuctionID)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return "", fmt.Errorf("ledger: %w - amount must be a positive finite number, got %v", biddingerrors.ErrInvalidBid, amount)
	}

	bidID := l.keys.Next()
	userName := user.DisplayName()

	_, err := l.store.Transaction(ctx, repository.AuctionPath(auctionID), func(current any) (any, error) {
		room, ok := current.(map[string]any)
		if !ok {
			return nil, biddingerrors.ErrAuctionNotFound
		}
		summary := summaryOf(room)

		if summary.Status != model.StatusActive {
			return nil, fmt.Errorf("%w - status is %s", biddingerrors.ErrAuctionClosed, summary.Status)
		}
		if summary.EndTime > 0 && l.now().UnixMilli() >= summary.EndTime {
			return nil, fmt.Errorf("%w - auction ended", biddingerrors.ErrAuctionClosed)
		}
		if minBid := l.MinimumNextBid(summary); amount < minBid {
			return nil, fmt.Errorf("%w - minimum next bid is %.2f", biddingerrors.ErrBidTooLow, minBid)
		}

		bids, _ := room["bids"].(map[string]any)
		if bids == nil {
			bids = make(map[string]any)
		}
		// generators of other writers may share our node id
		for bids[bidID] != nil {
			bidID = l.keys.Next()
		}
		bids[bidID] = map[string]any{
			"id":        bidID,
			"userId":    user.UserID,
			"userName":  userName,
			"amount":    amount,
			"timestamp": realtime.ServerTimestamp,
			"isWinning": true,
		}
		room["bids"] = bids
		room["currentHighestBid"] = amount
		room["totalBids"] = summary.TotalBids + 1
		room["highestBidId"] = bidID
		room["highestBidderId"] = user.UserID
		room["lastBidAt"] = realtime.ServerTimestamp
		return room, nil
	})
	if err != nil {
		if biddingerrors.IsDomain(err) {
			return "", fmt.Errorf("ledger: bid on %s: %w", auctionID, err)
		}
		return "", fmt.Errorf("ledger: bid on %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}

	fields := map[string]any{
		"userId":    user.UserID,
		"userName":  userName,
		"totalBids": realtime.Increment(1),
		"lastSeen":  realtime.ServerTimestamp,
	}
	if err := l.store.Update(ctx, l.scope.ParticipantPath(auctionID, user.UserID), fields); err != nil {
		utils.Warn("ledger: participant bid counter not updated", map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
			"error":      err.Error(),
		})
	}

	if l.activity != nil {
		entry := activity.BidEntry(auctionID, bidID, user.UserID, userName, amount)
		if err := l.activity.Publish(ctx, entry, activity.Auction(auctionID), activity.Global); err != nil {
			utils.Warn("ledger: bid activity not recorded", map[string]any{
				"auction_id": auctionID,
				"bid_id":     bidID,
				"error":      err.Error(),
			})
		}
	}

	utils.Info("ledger: bid placed", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bidID,
		"user_id":    user.UserID,
		"amount":     amount,
	})
	return bidID, nil
}

// summaryOf reads the fields the bid rules depend on from a raw room
func summaryOf(room map[string]any) model.AuctionRoom {
	num := func(key string) float64 {
		f, _ := room[key].(float64)
		return f
	}
	status, _ := room["status"].(string)
	return model.AuctionRoom{
		Status:            model.AuctionStatus(status),
		EndTime:           int64(num("endTime")),
		StartingBid:       num("startingBid"),
		CurrentHighestBid: num("currentHighestBid"),
		TotalBids:         int(num("totalBids")),
	}
}

// GetTotalBids returns the size of the bid collection
func (l *Ledger) GetTotalBids(ctx context.Context, auctionID string) (int, error) {
	snap, err := l.store.Get(ctx, repository.BidsPath(auctionID))
	if err != nil {
		return 0, fmt.Errorf("ledger: count bids of %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	return snap.NumChildren(), nil
}

// GetUserBidCount counts the bids userID placed on the auction
func (l *Ledger) GetUserBidCount(ctx context.Context, auctionID, userID string) (int, error) {
	bids, err := l.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("ledger: %w", err)
	}
	n := 0
	for _, b := range bids {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

// GetBids returns the bids of an auction ordered by server timestamp
func (l *Ledger) GetBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	bids, err := l.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	return bids, nil
}

// Subscribe delivers the ordered bids of an auction on every change
func (l *Ledger) Subscribe(auctionID string, fn func([]model.Bid)) (realtime.Unsubscribe, error) {
	return l.store.Subscribe(repository.BidsPath(auctionID), func(snap realtime.Snapshot) {
		bids, err := repository.DecodeBids(snap)
		if err != nil {
			utils.Warn("ledger: undecodable bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
			return
		}
		fn(bids)
	})
}
