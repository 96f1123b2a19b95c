package bidding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aarath-auction/internal/activity"
	"aarath-auction/internal/biddingerrors"
	"aarath-auction/internal/ledger"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/presence"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/reconcile"
	"aarath-auction/internal/registry"
	"aarath-auction/internal/repository"
	"aarath-auction/utils"
)

// Archive stores activity trimmed from the live streams
type Archive interface {
	activity.Archiver
	List(ctx context.Context, scope string, limit int) ([]model.ActivityEntry, error)
}

// Options tunes the coordinator. A zero ActivityWindow or ParticipantScope falls back
// to its default; a negative MinIncrementPct uses the default increment.
type Options struct {
	MinIncrementPct   float64
	ActivityWindow    int
	ActivityRetention int
	ParticipantScope  repository.ParticipantScope
	Keys              *realtime.KeyGenerator
	Archive           Archive
	Clock             func() time.Time
}

// BiddingService is the coordinator used by every transport: it wires the room
// registry, bid ledger, presence tracker and activity log over one store.
type BiddingService struct {
	store    realtime.Store
	repo     repository.AuctionDB
	registry *registry.Registry
	ledger   *ledger.Ledger
	presence *presence.Tracker
	activity *activity.Log
	archive  Archive
	window   int
	minPct   float64
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(store realtime.Store, opts Options) *BiddingService {
	if opts.ActivityWindow <= 0 {
		opts.ActivityWindow = activity.DefaultWindow
	}
	if opts.ParticipantScope == "" {
		opts.ParticipantScope = repository.ParticipantsGlobal
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MinIncrementPct < 0 {
		opts.MinIncrementPct = ledger.DefaultMinIncrementPercent
	}

	logOpts := []activity.Option{activity.WithRetention(opts.ActivityRetention)}
	if opts.Archive != nil {
		logOpts = append(logOpts, activity.WithArchiver(opts.Archive))
	}
	log := activity.NewLog(store, logOpts...)
	repo := repository.NewStoreRepo(store)

	ledgerOpts := []ledger.Option{
		ledger.WithMinIncrement(opts.MinIncrementPct),
		ledger.WithParticipantScope(opts.ParticipantScope),
		ledger.WithClock(opts.Clock),
	}
	if opts.Keys != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithKeyGenerator(opts.Keys))
	}

	return &BiddingService{
		store: store,
		repo:  repo,
		registry: registry.New(store, repo,
			registry.WithParticipantScope(opts.ParticipantScope),
			registry.WithClock(opts.Clock)),
		ledger: ledger.New(store, repo, log, ledgerOpts...),
		presence: presence.New(store, repo, log,
			presence.WithParticipantScope(opts.ParticipantScope),
			presence.WithClock(opts.Clock)),
		activity: log,
		archive:  opts.Archive,
		window:   opts.ActivityWindow,
		minPct:   opts.MinIncrementPct,
	}
}

// Reconciler returns a repair job over the same store and presence tracker
func (s *BiddingService) Reconciler(presenceTTL time.Duration) *reconcile.Reconciler {
	return reconcile.New(s.store, s.repo, s.presence, presenceTTL)
}

// ActivityWindow is the number of entries delivered to feed subscribers
func (s *BiddingService) ActivityWindow() int {
	return s.window
}

// MinIncrementPercent is the configured minimum raise
func (s *BiddingService) MinIncrementPercent() float64 {
	return s.minPct
}

// validateAuctionID rejects ids that would address another part of the store
func validateAuctionID(auctionID string) error {
	if auctionID == "" {
		return fmt.Errorf("service: %w", biddingerrors.ErrMissingAuctionID)
	}
	if strings.ContainsAny(auctionID, "/.#$[]") {
		return fmt.Errorf("service: %w - auction id %q contains a reserved character", biddingerrors.ErrInvalidAuction, auctionID)
	}
	return nil
}

// NewSession opens a connection scoped session whose disconnect hooks run on the store
func (s *BiddingService) NewSession() *realtime.Session {
	return realtime.NewSession(s.store)
}

// InitializeAuctionRoom creates the room unless it already exists
func (s *BiddingService) InitializeAuctionRoom(ctx context.Context, payload model.AuctionPayload) (bool, error) {
	ok, err := s.registry.InitializeAuctionRoom(ctx, payload)
	if err != nil {
		return false, fmt.Errorf("service: failed to initialize auction room: %w", err)
	}
	return ok, nil
}

// JoinAuctionRoom marks user online in the auction with disconnect hooks on sess
func (s *BiddingService) JoinAuctionRoom(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity) (bool, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return false, err
	}
	if user == nil || user.UserID == "" {
		return false, fmt.Errorf("service: %w", biddingerrors.ErrUnauthenticated)
	}
	if err := s.ensureRoom(ctx, auctionID); err != nil {
		return false, err
	}

	ok, err := s.presence.Join(ctx, sess, auctionID, user)
	if err != nil {
		return false, fmt.Errorf("service: failed to join auction %s: %w", auctionID, err)
	}
	return ok, nil
}

func (s *BiddingService) ensureRoom(ctx context.Context, auctionID string) error {
	snap, err := s.store.Get(ctx, realtime.Join(repository.AuctionPath(auctionID), "status"))
	if err != nil {
		return fmt.Errorf("service: read auction %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	if !snap.Exists() {
		return fmt.Errorf("service: %w - %s", biddingerrors.ErrAuctionNotFound, auctionID)
	}
	return nil
}

// LeaveAuctionRoom marks user offline. Failures are logged, never returned.
func (s *BiddingService) LeaveAuctionRoom(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity) {
	if err := s.presence.Leave(ctx, sess, auctionID, user); err != nil {
		fields := map[string]any{"auction_id": auctionID, "error": err.Error()}
		if user != nil {
			fields["user_id"] = user.UserID
		}
		utils.Warn("service: leave failed", fields)
	}
}

// Cleanup is the teardown of an auction page and equals LeaveAuctionRoom
func (s *BiddingService) Cleanup(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity) {
	s.LeaveAuctionRoom(ctx, sess, auctionID, user)
}

// PlaceBid validates and records a bid and returns its id
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID string, amount float64, user *model.UserIdentity) (string, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return "", err
	}
	id, err := s.ledger.PlaceBid(ctx, auctionID, amount, user)
	if err != nil {
		return "", fmt.Errorf("service: failed to place bid on auction %s: %w", auctionID, err)
	}
	return id, nil
}

// GetAuction returns the room summary
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.AuctionRoom, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return model.AuctionRoom{}, err
	}
	room, err := s.registry.GetAuctionRoom(ctx, auctionID)
	if err != nil {
		return model.AuctionRoom{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return room, nil
}

// ListAuctionIDs returns every room id
func (s *BiddingService) ListAuctionIDs(ctx context.Context) ([]string, error) {
	ids, err := s.registry.ListAuctionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return ids, nil
}

// SetAuctionStatus moves the room to status and records the transition in the activity streams
func (s *BiddingService) SetAuctionStatus(ctx context.Context, auctionID string, status model.AuctionStatus) error {
	if err := validateAuctionID(auctionID); err != nil {
		return err
	}
	prev, err := s.registry.SetStatus(ctx, auctionID, status)
	if err != nil {
		return fmt.Errorf("service: failed to set status of auction %s: %w", auctionID, err)
	}
	if prev == status {
		return nil
	}
	if err := s.activity.Publish(ctx, activity.StatusEntry(auctionID, prev, status), activity.Auction(auctionID), activity.Global); err != nil {
		utils.Warn("service: status activity not recorded", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
	return nil
}

// GetBids returns the bids of an auction ordered by server timestamp
func (s *BiddingService) GetBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}
	bids, err := s.ledger.GetBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetTotalBids returns the size of the bid ledger
func (s *BiddingService) GetTotalBids(ctx context.Context, auctionID string) (int, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return 0, err
	}
	n, err := s.ledger.GetTotalBids(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("service: failed to count bids for auction %s: %w", auctionID, err)
	}
	return n, nil
}

// GetUserBidCount counts the bids userID placed on the auction
func (s *BiddingService) GetUserBidCount(ctx context.Context, auctionID, userID string) (int, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, fmt.Errorf("service: %w - empty user id", biddingerrors.ErrValidation)
	}
	n, err := s.ledger.GetUserBidCount(ctx, auctionID, userID)
	if err != nil {
		return 0, fmt.Errorf("service: failed to count bids of user %s: %w", userID, err)
	}
	return n, nil
}

// MinimumNextBid returns the lowest amount the next bid may have
func (s *BiddingService) MinimumNextBid(ctx context.Context, auctionID string) (float64, error) {
	room, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	return s.ledger.MinimumNextBid(room), nil
}

// RecentActivity returns the newest n entries of an auction, or of the global
// stream when auctionID is empty. n <= 0 uses the configured window.
func (s *BiddingService) RecentActivity(ctx context.Context, auctionID string, n int) ([]model.ActivityEntry, error) {
	scope := activity.Global
	if auctionID != "" {
		if err := validateAuctionID(auctionID); err != nil {
			return nil, err
		}
		scope = activity.Auction(auctionID)
	}
	if n <= 0 {
		n = s.window
	}
	entries, err := s.activity.Recent(ctx, scope, n)
	if err != nil {
		return nil, fmt.Errorf("service: failed to read activity: %w", err)
	}
	return entries, nil
}

// ArchivedActivity returns entries trimmed from a stream, newest first
func (s *BiddingService) ArchivedActivity(ctx context.Context, auctionID string, limit int) ([]model.ActivityEntry, error) {
	if s.archive == nil {
		return []model.ActivityEntry{}, nil
	}
	scope := activity.Global
	if auctionID != "" {
		if err := validateAuctionID(auctionID); err != nil {
			return nil, err
		}
		scope = activity.Auction(auctionID)
	}
	entries, err := s.archive.List(ctx, scope.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to read archive: %w: %w", biddingerrors.ErrStore, err)
	}
	return entries, nil
}

// TouchPresence refreshes lastSeen of a joined participant
func (s *BiddingService) TouchPresence(ctx context.Context, auctionID, userID string) error {
	return s.presence.Touch(ctx, auctionID, userID)
}

// OnlineCount reads the online participant counter of an auction
func (s *BiddingService) OnlineCount(ctx context.Context, auctionID string) (int, error) {
	return s.presence.OnlineCount(ctx, auctionID)
}

// SubscribeToAuction delivers the room summary on every change. Nothing is
// delivered while the room does not exist.
func (s *BiddingService) SubscribeToAuction(auctionID string, fn func(model.AuctionRoom)) (realtime.Unsubscribe, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}
	unsub, err := s.store.Subscribe(repository.AuctionPath(auctionID), func(snap realtime.Snapshot) {
		if !snap.Exists() {
			return
		}
		room, err := repository.DecodeRoom(snap)
		if err != nil {
			utils.Warn("service: undecodable auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
			return
		}
		fn(room.Summary())
	})
	return s.subscribed(unsub, err, auctionID, "auction")
}

// SubscribeToBids delivers the ordered bids on every change
func (s *BiddingService) SubscribeToBids(auctionID string, fn func([]model.Bid)) (realtime.Unsubscribe, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}
	unsub, err := s.ledger.Subscribe(auctionID, fn)
	return s.subscribed(unsub, err, auctionID, "bids")
}

// SubscribeToParticipants delivers the participants visible from the auction
func (s *BiddingService) SubscribeToParticipants(auctionID string, fn func([]model.Participant)) (realtime.Unsubscribe, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}
	unsub, err := s.presence.Subscribe(auctionID, fn)
	return s.subscribed(unsub, err, auctionID, "participants")
}

// SubscribeToActivity delivers the newest entries of the auction stream
func (s *BiddingService) SubscribeToActivity(auctionID string, fn func([]model.ActivityEntry)) (realtime.Unsubscribe, error) {
	if err := validateAuctionID(auctionID); err != nil {
		return nil, err
	}
	unsub, err := s.activity.Subscribe(activity.Auction(auctionID), s.window, fn)
	return s.subscribed(unsub, err, auctionID, "activity")
}

// SubscribeToGlobalActivity delivers the newest entries of the global stream
func (s *BiddingService) SubscribeToGlobalActivity(fn func([]model.ActivityEntry)) (realtime.Unsubscribe, error) {
	unsub, err := s.activity.Subscribe(activity.Global, s.window, fn)
	return s.subscribed(unsub, err, "", "globalActivity")
}

func (s *BiddingService) subscribed(unsub realtime.Unsubscribe, err error, auctionID, topic string) (realtime.Unsubscribe, error) {
	if err != nil {
		return nil, fmt.Errorf("service: failed to subscribe to %s of %q: %w: %w", topic, auctionID, biddingerrors.ErrStore, err)
	}
	return unsub, nil
}
