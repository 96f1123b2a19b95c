package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"aarath-auction/internal/biddingerrors"
	model "aarath-auction/internal/models"
	"aarath-auction/internal/realtime"
	"aarath-auction/internal/repository"
	"aarath-auction/utils"
)

// DefaultWindow is the number of entries delivered to feed readers
const DefaultWindow = 50

// Scope selects one activity stream
type Scope struct {
	AuctionID string
}

// Global is the cross-auction stream
var Global = Scope{}

// Auction is the stream of one auction
func Auction(auctionID string) Scope {
	return Scope{AuctionID: auctionID}
}

// IsGlobal reports whether s is the cross-auction stream
func (s Scope) IsGlobal() bool {
	return s.AuctionID == ""
}

// Path is the store location of the stream
func (s Scope) Path() string {
	if s.IsGlobal() {
		return repository.GlobalActivityPath
	}
	return repository.AuctionActivityPath(s.AuctionID)
}

// String names the stream, e.g. for the archive
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "auction:" + s.AuctionID
}

// Archiver receives entries trimmed from a stream
type Archiver interface {
	Archive(ctx context.Context, scope string, entries []model.ActivityEntry) error
}

// Log appends to and reads the activity streams
type Log struct {
	store     realtime.Store
	retention int
	archiver  Archiver
}

// Option configures a Log
type Option func(*Log)

// WithRetention caps every stream at n entries; older entries are trimmed on write.
// Zero keeps everything.
func WithRetention(n int) Option {
	return func(l *Log) { l.retention = n }
}

// WithArchiver hands trimmed entries to a so they are not lost
func WithArchiver(a Archiver) Option {
	return func(l *Log) { l.archiver = a }
}

// NewLog creates an activity log on store
func NewLog(store realtime.Store, opts ...Option) *Log {
	l := &Log{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add appends entry to one stream and returns its store key. The timestamp is
// assigned by the store.
func (l *Log) Add(ctx context.Context, scope Scope, entry model.ActivityEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = utils.GenerateID()
	}
	if entry.AuctionID == "" {
		entry.AuctionID = scope.AuctionID
	}

	value, err := realtime.Normalize(entry)
	if err != nil {
		return "", fmt.Errorf("activity: encode entry: %w", err)
	}
	record, _ := value.(map[string]any)
	record["timestamp"] = realtime.ServerTimestamp

	key, err := l.store.Push(ctx, scope.Path(), record)
	if err != nil {
		return "", fmt.Errorf("activity: append to %s: %w: %w", scope, biddingerrors.ErrStore, err)
	}

	if l.retention > 0 {
		if err := l.trim(ctx, scope); err != nil {
			utils.Warn("activity: trim failed", map[string]any{"scope": scope.String(), "error": err.Error()})
		}
	}
	return key, nil
}

// Publish writes the same event to every scope. All scopes are attempted.
func (l *Log) Publish(ctx context.Context, entry model.ActivityEntry, scopes ...Scope) error {
	if entry.ID == "" {
		entry.ID = utils.GenerateID()
	}
	var errs []error
	for _, scope := range scopes {
		if _, err := l.Add(ctx, scope, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// trim removes the oldest entries past the retention cap
func (l *Log) trim(ctx context.Context, scope Scope) error {
	snap, err := l.store.Get(ctx, scope.Path())
	if err != nil {
		return err
	}
	excess := snap.NumChildren() - l.retention
	if excess <= 0 {
		return nil
	}

	// children are ordered by key, which is creation order
	oldest := snap.Children()[:excess]
	if l.archiver != nil {
		entries, err := decodeChildren(oldest)
		if err != nil {
			return err
		}
		if err := l.archiver.Archive(ctx, scope.String(), entries); err != nil {
			return fmt.Errorf("archive %d entries: %w", len(entries), err)
		}
	}

	removals := make(map[string]any, len(oldest))
	for _, child := range oldest {
		removals[child.Key()] = nil
	}
	return l.store.Update(ctx, scope.Path(), removals)
}

// Recent returns the newest n entries of a stream, newest first
func (l *Log) Recent(ctx context.Context, scope Scope, n int) ([]model.ActivityEntry, error) {
	snap, err := l.store.Get(ctx, scope.Path())
	if err != nil {
		return nil, fmt.Errorf("activity: read %s: %w: %w", scope, biddingerrors.ErrStore, err)
	}
	entries, err := Decode(snap)
	if err != nil {
		return nil, err
	}
	return Newest(entries, n), nil
}

// Subscribe delivers the newest n entries of a stream on every change
func (l *Log) Subscribe(scope Scope, n int, fn func([]model.ActivityEntry)) (realtime.Unsubscribe, error) {
	return l.store.Subscribe(scope.Path(), func(snap realtime.Snapshot) {
		entries, err := Decode(snap)
		if err != nil {
			utils.Warn("activity: undecodable stream", map[string]any{"scope": scope.String(), "error": err.Error()})
			return
		}
		fn(Newest(entries, n))
	})
}

// Decode reads every entry of a stream snapshot
func Decode(snap realtime.Snapshot) ([]model.ActivityEntry, error) {
	return decodeChildren(snap.Children())
}

func decodeChildren(children []realtime.Snapshot) ([]model.ActivityEntry, error) {
	entries := make([]model.ActivityEntry, 0, len(children))
	for _, child := range children {
		var e model.ActivityEntry
		if err := child.Decode(&e); err != nil {
			return nil, fmt.Errorf("activity: decode %s: %w", child.Key(), err)
		}
		e.Key = child.Key()
		if e.ID == "" {
			e.ID = e.Key
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Newest sorts entries newest first (timestamp, then store key) and keeps the first n (n <= 0 keeps all)
func Newest(entries []model.ActivityEntry, n int) []model.ActivityEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		// store keys are creation ordered, ids are random
		if entries[i].Key != entries[j].Key {
			return entries[i].Key > entries[j].Key
		}
		return entries[i].ID > entries[j].ID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Merge combines several streams into one newest-first feed of at most n entries.
// Copies of the same event keep the newest one.
func Merge(n int, feeds ...[]model.ActivityEntry) []model.ActivityEntry {
	byID := make(map[string]model.ActivityEntry)
	for _, feed := range feeds {
		for _, e := range feed {
			if prev, ok := byID[e.ID]; !ok || e.Timestamp > prev.Timestamp {
				byID[e.ID] = e
			}
		}
	}
	merged := make([]model.ActivityEntry, 0, len(byID))
	for _, e := range byID {
		merged = append(merged, e)
	}
	return Newest(merged, n)
}
