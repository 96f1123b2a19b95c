package registry

import (
	"context"
	"fmt"
	"time"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/repository"
	"aarath-auction/utils"
)

// Registry owns the auction room records
type Registry struct {
	store realtime.Store
	repo  repository.AuctionDB
	scope repository.ParticipantScope
	now   func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the clock used to default the start time
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithParticipantScope selects where the online counter of new rooms lives
func WithParticipantScope(scope repository.ParticipantScope) Option {
	return func(r *Registry) { r.scope = scope }
}

// New creates a registry
func New(store realtime.Store, repo repository.AuctionDB, opts ...Option) *Registry {
	r := &Registry{store: store, repo: repo, scope: repository.ParticipantsGlobal, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitializeAuctionRoom creates the room described by payload unless it already exists.
// Re-initialization never touches live bid state.
func (r *Registry) InitializeAuctionRoom(ctx context.Context, payload model.AuctionPayload) (bool, error) {
	room, err := payload.Normalize(r.now())
	if err != nil {
		return false, fmt.Errorf("registry: %w", err)
	}
	path := repository.AuctionPath(room.AuctionID)

	snap, err := r.store.Get(ctx, path)
	if err != nil {
		return false, fmt.Errorf("registry: read room %s: %w: %w", room.AuctionID, biddingerrors.ErrStore, err)
	}
	if snap.Exists() {
		utils.Debug("registry: room already initialized", map[string]any{"auction_id": room.AuctionID})
		return true, nil
	}

	record, err := realtime.Normalize(room.Summary())
	if err != nil {
		return false, fmt.Errorf("registry: encode room %s: %w", room.AuctionID, err)
	}
	record.(map[string]any)["createdAt"] = realtime.ServerTimestamp

	// a concurrent initializer may have won between the read and here
	res, err := r.store.Transaction(ctx, path, func(current any) (any, error) {
		if current != nil {
			return nil, realtime.ErrAbort
		}
		return record, nil
	})
	if err != nil {
		return false, fmt.Errorf("registry: create room %s: %w: %w", room.AuctionID, biddingerrors.ErrStore, err)
	}
	if !res.Committed {
		return true, nil
	}

	if err := r.ensureCounter(ctx, room.AuctionID); err != nil {
		utils.Warn("registry: participant counter not initialized", map[string]any{
			"auction_id": room.AuctionID,
			"error":      err.Error(),
		})
	}

	utils.Info("registry: auction room initialized", map[string]any{
		"auction_id":   room.AuctionID,
		"starting_bid": room.StartingBid,
		"status":       room.Status,
		"end_time":     room.EndTime,
	})
	return true, nil
}

// ensureCounter creates the online participant counter if it is missing
func (r *Registry) ensureCounter(ctx context.Context, auctionID string) error {
	_, err := r.store.Transaction(ctx, r.scope.CounterPath(auctionID), func(current any) (any, error) {
		if current != nil {
			return nil, realtime.ErrAbort
		}
		return 0, nil
	})
	return err
}

// GetAuctionRoom returns the room summary
func (r *Registry) GetAuctionRoom(ctx context.Context, auctionID string) (model.AuctionRoom, error) {
	if auctionID == "" {
		return model.AuctionRoom{}, fmt.Errorf("registry: %w", biddingerrors.ErrMissingAuctionID)
	}
	room, err := r.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.AuctionRoom{}, fmt.Errorf("registry: %w", err)
	}
	return room.Summary(), nil
}

// ListAuctionIDs returns every known room id
func (r *Registry) ListAuctionIDs(ctx context.Context) ([]string, error) {
	ids, err := r.repo.ListAuctionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return ids, nil
}

// SetStatus moves a room to status and returns the previous one. Unchanged status is not written.
func (r *Registry) SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus) (model.AuctionStatus, error) {
	if !status.Valid() {
		return "", fmt.Errorf("registry: %w - unknown status %q", biddingerrors.ErrValidation, status)
	}

	var previous model.AuctionStatus
	res, err := r.store.Transaction(ctx, repository.AuctionPath(auctionID), func(current any) (any, error) {
		room, ok := current.(map[string]any)
		if !ok {
			return nil, biddingerrors.ErrAuctionNotFound
		}
		prev, _ := room["status"].(string)
		previous = model.AuctionStatus(prev)
		if previous == status {
			return nil, realtime.ErrAbort
		}
		room["status"] = string(status)
		return room, nil
	})
	if err != nil {
		if biddingerrors.IsDomain(err) {
			return "", fmt.Errorf("registry: set status of %s: %w", auctionID, err)
		}
		return "", fmt.Errorf("registry: set status of %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	if res.Committed {
		utils.Info("registry: auction status changed", map[string]any{
			"auction_id": auctionID,
			"from":       previous,
			"to":         status,
		})
	}
	return previous, nil
}
