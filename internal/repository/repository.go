package repository

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

import (
	"context"
	"fmt"
	"sort"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
)

// AuctionDB is the typed read side of the realtime store
type AuctionDB interface {
	GetAuction(ctx context.Context, auctionID string) (model.AuctionRoom, error)
	ListAuctionIDs(ctx context.Context) ([]string, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetParticipants(ctx context.Context, collection string) ([]model.Participant, error)
}

// StoreRepo implements AuctionDB on top of a realtime.Store
type StoreRepo struct {
	store realtime.Store
}

// NewStoreRepo creates a repository reading from store
func NewStoreRepo(store realtime.Store) *StoreRepo {
	return &StoreRepo{store: store}
}

// GetAuction returns the room record, including its nested collections
func (r *StoreRepo) GetAuction(ctx context.Context, auctionID string) (model.AuctionRoom, error) {
	snap, err := r.store.Get(ctx, AuctionPath(auctionID))
	if err != nil {
		return model.AuctionRoom{}, fmt.Errorf("get auction %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	if !snap.Exists() {
		return model.AuctionRoom{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return DecodeRoom(snap)
}

// ListAuctionIDs returns the ids of every room in the store
func (r *StoreRepo) ListAuctionIDs(ctx context.Context) ([]string, error) {
	snap, err := r.store.Get(ctx, AuctionsPath)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w: %w", biddingerrors.ErrStore, err)
	}
	children := snap.Children()
	ids := make([]string, 0, len(children))
	for _, child := range children {
		ids = append(ids, child.Key())
	}
	return ids, nil
}

// GetBidsByAuction returns the ledger ordered by server timestamp
func (r *StoreRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	snap, err := r.store.Get(ctx, BidsPath(auctionID))
	if err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	return DecodeBids(snap)
}

// GetParticipants returns the participant records stored under collection
func (r *StoreRepo) GetParticipants(ctx context.Context, collection string) ([]model.Participant, error) {
	snap, err := r.store.Get(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("get participants %s: %w: %w", collection, biddingerrors.ErrStore, err)
	}
	return DecodeParticipants(snap)
}

// DecodeRoom converts an auction snapshot into a room
func DecodeRoom(snap realtime.Snapshot) (model.AuctionRoom, error) {
	var room model.AuctionRoom
	if err := snap.Decode(&room); err != nil {
		return model.AuctionRoom{}, fmt.Errorf("decode auction %s: %w", snap.Key(), err)
	}
	if room.AuctionID == "" {
		room.AuctionID = snap.Key()
	}
	return room, nil
}

// DecodeBids converts a bid collection snapshot into bids ordered by timestamp then id
func DecodeBids(snap realtime.Snapshot) ([]model.Bid, error) {
	bids := make([]model.Bid, 0, snap.NumChildren())
	for _, child := range snap.Children() {
		var b model.Bid
		if err := child.Decode(&b); err != nil {
			return nil, fmt.Errorf("decode bid %s: %w", child.Key(), err)
		}
		if b.ID == "" {
			b.ID = child.Key()
		}
		bids = append(bids, b)
	}
	SortBids(bids)
	return bids, nil
}

// DecodeParticipants converts a participant collection snapshot, ordered by user id
func DecodeParticipants(snap realtime.Snapshot) ([]model.Participant, error) {
	out := make([]model.Participant, 0, snap.NumChildren())
	for _, child := range snap.Children() {
		var p model.Participant
		if err := child.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode participant %s: %w", child.Key(), err)
		}
		if p.UserID == "" {
			p.UserID = child.Key()
		}
		out = append(out, p)
	}
	return out, nil
}

// SortBids orders bids by server timestamp, breaking ties by id
func SortBids(bids []model.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Timestamp != bids[j].Timestamp {
			return bids[i].Timestamp < bids[j].Timestamp
		}
		return bids[i].ID < bids[j].ID
	})
}

// LatestBid returns the bid with the latest server timestamp
func LatestBid(bids []model.Bid) (model.Bid, bool) {
	if len(bids) == 0 {
		return model.Bid{}, false
	}
	latest := bids[0]
	for _, b := range bids[1:] {
		if b.Timestamp > latest.Timestamp || (b.Timestamp == latest.Timestamp && b.ID > latest.ID) {
			latest = b
		}
	}
	return latest, true
}
