package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/presence"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/repository"
	"aarath-auction/utils"
)

// Report summarizes one reconciliation pass
type Report struct {
	Auctions             int
	RepairedRooms        int
	RepairedParticipants int
	Swept                int
	Online               int
}

// Reconciler repairs derived counters from the records they are derived from
type Reconciler struct {
	store    realtime.Store
	repo     repository.AuctionDB
	presence *presence.Tracker
	ttl      time.Duration
}

// New creates a reconciler. A zero ttl disables the stale presence sweep.
func New(store realtime.Store, repo repository.AuctionDB, tracker *presence.Tracker, ttl time.Duration) *Reconciler {
	return &Reconciler{store: store, repo: repo, presence: tracker, ttl: ttl}
}

// Run reconciles every interval until ctx is done
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		utils.Info("reconcile: disabled", nil)
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := r.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				utils.Error("reconcile: pass failed", map[string]any{"error": err.Error()})
				continue
			}
			utils.Debug("reconcile: pass done", map[string]any{
				"auctions":              report.Auctions,
				"repaired_rooms":        report.RepairedRooms,
				"repaired_participants": report.RepairedParticipants,
				"swept":                 report.Swept,
				"online":                report.Online,
			})
		}
	}
}

// RunOnce performs one pass: room summaries, participant bid counters, stale
// presence and the online counter. It continues past per-auction failures and
// returns them joined.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	ids, err := r.repo.ListAuctionIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}
	report.Auctions = len(ids)

	var errs []error
	bidsByAuction := make(map[string][]model.Bid, len(ids))
	for _, id := range ids {
		repaired, err := r.repairRoom(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if repaired {
			report.RepairedRooms++
		}
		bids, err := r.repo.GetBidsByAuction(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		bidsByAuction[id] = bids
	}

	scope := r.presence.Scope()
	collections := []string{""}
	if scope == repository.ParticipantsPerAuction {
		collections = ids
	}

	for _, auctionID := range collections {
		n, err := r.repairParticipantBids(ctx, auctionID, bidsByAuction)
		report.RepairedParticipants += n
		if err != nil {
			errs = append(errs, err)
		}

		if r.ttl > 0 {
			swept, err := r.presence.SweepStale(ctx, auctionID, r.ttl)
			report.Swept += swept
			if err != nil {
				errs = append(errs, err)
			}
		}

		online, err := r.presence.UpdateParticipantCount(ctx, auctionID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Online += online
	}

	if report.RepairedRooms > 0 || report.RepairedParticipants > 0 {
		utils.Info("reconcile: repaired drifted counters", map[string]any{
			"rooms":        report.RepairedRooms,
			"participants": report.RepairedParticipants,
		})
	}
	return report, errors.Join(errs...)
}

// repairRoom rewrites the derived room fields from the bid ledger when they drifted
func (r *Reconciler) repairRoom(ctx context.Context, auctionID string) (bool, error) {
	res, err := r.store.Transaction(ctx, repository.AuctionPath(auctionID), func(current any) (any, error) {
		room, ok := current.(map[string]any)
		if !ok {
			return nil, realtime.ErrAbort
		}
		snap := realtime.NewSnapshot(repository.BidsPath(auctionID), room["bids"])
		bids, err := repository.DecodeBids(snap)
		if err != nil {
			return nil, err
		}

		total, _ := room["totalBids"].(float64)
		highest, _ := room["currentHighestBid"].(float64)
		starting, _ := room["startingBid"].(float64)
		highestID, _ := room["highestBidId"].(string)

		latest, ok := repository.LatestBid(bids)
		if !ok {
			if total == 0 && highest >= starting {
				return nil, realtime.ErrAbort
			}
			room["totalBids"] = 0
			room["currentHighestBid"] = starting
			return room, nil
		}
		if int(total) == len(bids) && highest == latest.Amount && highestID == latest.ID {
			return nil, realtime.ErrAbort
		}
		room["totalBids"] = len(bids)
		room["currentHighestBid"] = latest.Amount
		room["highestBidId"] = latest.ID
		room["highestBidderId"] = latest.UserID
		return room, nil
	})
	if err != nil {
		return false, fmt.Errorf("reconcile: room %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	if res.Committed {
		utils.Warn("reconcile: room summary repaired", map[string]any{"auction_id": auctionID})
	}
	return res.Committed, nil
}

// repairParticipantBids sets each participant's totalBids to the number of bids they
// placed. In global scope the count spans every auction.
func (r *Reconciler) repairParticipantBids(ctx context.Context, auctionID string, bidsByAuction map[string][]model.Bid) (int, error) {
	scope := r.presence.Scope()
	counts := make(map[string]int)
	for id, bids := range bidsByAuction {
		if scope == repository.ParticipantsPerAuction && id != auctionID {
			continue
		}
		for _, b := range bids {
			counts[b.UserID]++
		}
	}

	participants, err := r.repo.GetParticipants(ctx, scope.Collection(auctionID))
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}

	repaired := 0
	for _, p := range participants {
		want := counts[p.UserID]
		if p.TotalBids == want {
			continue
		}
		// a bid counted in meanwhile leaves the record for the next pass
		seen := float64(p.TotalBids)
		path := realtime.Join(scope.ParticipantPath(auctionID, p.UserID), "totalBids")
		res, err := r.store.Transaction(ctx, path, func(current any) (any, error) {
			if n, _ := current.(float64); n != seen {
				return nil, realtime.ErrAbort
			}
			return want, nil
		})
		if err != nil {
			return repaired, fmt.Errorf("reconcile: participant %s: %w: %w", p.UserID, biddingerrors.ErrStore, err)
		}
		if res.Committed {
			repaired++
		}
	}
	return repaired, nil
}
