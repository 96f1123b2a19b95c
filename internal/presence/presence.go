package presence

import (
	"context"
	"fmt"
	"time"

	"aarath-auction/internal/activity"
	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/repository"
	"aarath-auction/utils"
)

// Tracker keeps participant online state and the online counter
type Tracker struct {
	store    realtime.Store
	repo     repository.AuctionDB
	activity *activity.Log
	scope    repository.ParticipantScope
	now      func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithParticipantScope selects where participant records live
func WithParticipantScope(scope repository.ParticipantScope) Option {
	return func(t *Tracker) { t.scope = scope }
}

// WithClock overrides the clock used by SweepStale
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a presence tracker
func New(store realtime.Store, repo repository.AuctionDB, log *activity.Log, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		repo:     repo,
		activity: log,
		scope:    repository.ParticipantsGlobal,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Scope returns where participant records live
func (t *Tracker) Scope() repository.ParticipantScope {
	return t.scope
}

// ResolveDisplayName picks the name shown for a user
func ResolveDisplayName(user *model.UserIdentity) string {
	if user == nil {
		return "Anonymous"
	}
	return user.DisplayName()
}

// Join marks the user online in the auction. Disconnect hooks are installed on sess
// and the online counter is incremented only when the user was absent or offline;
// an already-online user is refreshed without a second join event.
func (t *Tracker) Join(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity) (bool, error) {
	if user == nil || user.UserID == "" {
		return false, fmt.Errorf("presence: %w", biddingerrors.ErrUnauthenticated)
	}
	if auctionID == "" {
		return false, fmt.Errorf("presence: %w", biddingerrors.ErrMissingAuctionID)
	}
	if sess != nil && sess.Closed() {
		return false, fmt.Errorf("presence: join %s: %w: %w", auctionID, biddingerrors.ErrStore, realtime.ErrClosed)
	}

	path := t.scope.ParticipantPath(auctionID, user.UserID)
	name := ResolveDisplayName(user)

	var wasOnline bool
	_, err := t.store.Transaction(ctx, path, func(current any) (any, error) {
		record, _ := current.(map[string]any)
		wasOnline = false
		if record == nil {
			record = make(map[string]any)
		} else {
			wasOnline, _ = record["isOnline"].(bool)
		}
		record["userId"] = user.UserID
		record["userName"] = name
		record["isOnline"] = true
		record["lastSeen"] = realtime.ServerTimestamp
		if !wasOnline {
			record["joinedAt"] = realtime.ServerTimestamp
			if sess != nil {
				record["sessionId"] = sess.ID
			} else {
				delete(record, "sessionId")
			}
		}
		if _, ok := record["totalBids"]; !ok {
			record["totalBids"] = 0
		}
		return record, nil
	})
	if err != nil {
		return false, fmt.Errorf("presence: join %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	if wasOnline {
		utils.Debug("presence: rejoin of online participant", map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
		})
		return true, nil
	}

	counter := t.scope.CounterPath(auctionID)
	if sess != nil {
		t.installHooks(sess, path, counter, auctionID, user.UserID)
	}
	if err := t.store.Set(ctx, counter, realtime.Increment(1)); err != nil {
		utils.Warn("presence: online counter not incremented", map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
			"error":      err.Error(),
		})
	}

	t.publish(ctx, activity.JoinEntry(auctionID, user.UserID, name))
	utils.Info("presence: participant joined", map[string]any{
		"auction_id": auctionID,
		"user_id":    user.UserID,
		"user_name":  name,
	})
	return true, nil
}

// installHooks registers the offline fallback on sess; failures are logged only.
// The hook only flips a record this session still owns, and only a flip decrements
// the counter, so a leave, sweep or newer session in between makes it a no-op.
func (t *Tracker) installHooks(sess *realtime.Session, path, counter, auctionID, userID string) {
	owned := func(record map[string]any) bool {
		owner, _ := record["sessionId"].(string)
		return owner == sess.ID
	}
	err := sess.OnDisconnect(path).Do(func(ctx context.Context) error {
		flipped, err := t.markOffline(ctx, path, owned)
		if err != nil || !flipped {
			return err
		}
		return t.store.Set(ctx, counter, realtime.Increment(-1))
	})
	if err != nil {
		utils.Warn("presence: disconnect hook not installed", map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}
}

// Leave marks the user offline. The record is kept.
func (t *Tracker) Leave(ctx context.Context, sess *realtime.Session, auctionID string, user *model.UserIdentity) error {
	if user == nil || user.UserID == "" {
		return fmt.Errorf("presence: %w", biddingerrors.ErrUnauthenticated)
	}
	path := t.scope.ParticipantPath(auctionID, user.UserID)
	counter := t.scope.CounterPath(auctionID)
	if sess != nil {
		sess.OnDisconnect(path).Cancel()
	}

	wasOnline, err := t.markOffline(ctx, path, func(map[string]any) bool { return true })
	if err != nil {
		return fmt.Errorf("presence: leave %s: %w: %w", auctionID, biddingerrors.ErrStore, err)
	}
	if !wasOnline {
		return nil
	}

	if err := t.store.Set(ctx, counter, realtime.Increment(-1)); err != nil {
		utils.Warn("presence: online counter not decremented", map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
			"error":      err.Error(),
		})
	}
	t.publish(ctx, activity.LeaveEntry(auctionID, user.UserID, ResolveDisplayName(user)))
	utils.Info("presence: participant left", map[string]any{
		"auction_id": auctionID,
		"user_id":    user.UserID,
	})
	return nil
}

// markOffline flips an online record to offline when match reports true
func (t *Tracker) markOffline(ctx context.Context, path string, match func(map[string]any) bool) (bool, error) {
	res, err := t.store.Transaction(ctx, path, func(current any) (any, error) {
		record, ok := current.(map[string]any)
		if !ok {
			return nil, realtime.ErrAbort
		}
		if online, _ := record["isOnline"].(bool); !online || !match(record) {
			return nil, realtime.ErrAbort
		}
		record["isOnline"] = false
		record["lastSeen"] = realtime.ServerTimestamp
		return record, nil
	})
	if err != nil {
		return false, err
	}
	return res.Committed, nil
}

func (t *Tracker) publish(ctx context.Context, entry model.ActivityEntry) {
	if t.activity == nil {
		return
	}
	if err := t.activity.Publish(ctx, entry, activity.Auction(entry.AuctionID), activity.Global); err != nil {
		utils.Warn("presence: activity not recorded", map[string]any{
			"auction_id": entry.AuctionID,
			"user_id":    entry.UserID,
			"type":       entry.Type,
			"error":      err.Error(),
		})
	}
}

// Touch refreshes lastSeen of an existing participant
func (t *Tracker) Touch(ctx context.Context, auctionID, userID string) error {
	_, err := t.store.Transaction(ctx, t.scope.ParticipantPath(auctionID, userID), func(current any) (any, error) {
		record, ok := current.(map[string]any)
		if !ok {
			return nil, realtime.ErrAbort
		}
		record["lastSeen"] = realtime.ServerTimestamp
		return record, nil
	})
	if err != nil {
		return fmt.Errorf("presence: touch %s: %w: %w", userID, biddingerrors.ErrStore, err)
	}
	return nil
}

// Participants returns the participant records visible from an auction
func (t *Tracker) Participants(ctx context.Context, auctionID string) ([]model.Participant, error) {
	ps, err := t.repo.GetParticipants(ctx, t.scope.Collection(auctionID))
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}
	return ps, nil
}

// recountAttempts bounds how often UpdateParticipantCount restarts when the counter
// moves during a recount
const recountAttempts = 5

// UpdateParticipantCount recounts the online participants and overwrites the counter.
// The overwrite only commits if no increment landed on the counter since the recount
// started; otherwise the recount is repeated.
func (t *Tracker) UpdateParticipantCount(ctx context.Context, auctionID string) (int, error) {
	counter := t.scope.CounterPath(auctionID)
	for attempt := 0; attempt < recountAttempts; attempt++ {
		before, err := t.store.Get(ctx, counter)
		if err != nil {
			return 0, fmt.Errorf("presence: read participant count: %w: %w", biddingerrors.ErrStore, err)
		}
		seen, _ := before.Value().(float64)

		ps, err := t.Participants(ctx, auctionID)
		if err != nil {
			return 0, err
		}
		online := 0
		for _, p := range ps {
			if p.IsOnline {
				online++
			}
		}

		res, err := t.store.Transaction(ctx, counter, func(current any) (any, error) {
			if n, _ := current.(float64); n != seen {
				return nil, realtime.ErrAbort
			}
			return online, nil
		})
		if err != nil {
			return 0, fmt.Errorf("presence: write participant count: %w: %w", biddingerrors.ErrStore, err)
		}
		if res.Committed {
			return online, nil
		}
	}
	return 0, fmt.Errorf("presence: write participant count: %w: %w", biddingerrors.ErrStore, realtime.ErrTooManyRetries)
}

// OnlineCount reads the online counter
func (t *Tracker) OnlineCount(ctx context.Context, auctionID string) (int, error) {
	snap, err := t.store.Get(ctx, t.scope.CounterPath(auctionID))
	if err != nil {
		return 0, fmt.Errorf("presence: read participant count: %w: %w", biddingerrors.ErrStore, err)
	}
	n, _ := snap.Value().(float64)
	return int(n), nil
}

// SweepStale marks offline every online participant whose lastSeen is older than ttl.
// It covers sessions whose server instance died before their hooks could run.
func (t *Tracker) SweepStale(ctx context.Context, auctionID string, ttl time.Duration) (int, error) {
	ps, err := t.Participants(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	cutoff := t.now().Add(-ttl).UnixMilli()
	stale := func(record map[string]any) bool {
		seen, _ := record["lastSeen"].(float64)
		return int64(seen) < cutoff
	}

	swept := 0
	for _, p := range ps {
		if !p.IsOnline || p.LastSeen >= cutoff {
			continue
		}
		flipped, err := t.markOffline(ctx, t.scope.ParticipantPath(auctionID, p.UserID), stale)
		if err != nil {
			return swept, fmt.Errorf("presence: sweep %s: %w: %w", p.UserID, biddingerrors.ErrStore, err)
		}
		if !flipped {
			continue
		}
		swept++
		if err := t.store.Set(ctx, t.scope.CounterPath(auctionID), realtime.Increment(-1)); err != nil {
			utils.Warn("presence: online counter not decremented", map[string]any{"user_id": p.UserID, "error": err.Error()})
		}
	}
	if swept > 0 {
		utils.Info("presence: stale participants marked offline", map[string]any{
			"auction_id": auctionID,
			"count":      swept,
			"ttl":        ttl.String(),
		})
	}
	return swept, nil
}

// Subscribe delivers the participants visible from an auction on every change
func (t *Tracker) Subscribe(auctionID string, fn func([]model.Participant)) (realtime.Unsubscribe, error) {
	return t.store.Subscribe(t.scope.Collection(auctionID), func(snap realtime.Snapshot) {
		ps, err := repository.DecodeParticipants(snap)
		if err != nil {
			utils.Warn("presence: undecodable participants", map[string]any{"auction_id": auctionID, "error": err.Error()})
			return
		}
		fn(ps)
	})
}
