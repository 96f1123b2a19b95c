package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	model "aarath-auction/internal/models"

	json "github.com/goccy/go-json"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ArchivedActivity is an activity entry trimmed from a realtime stream
type ArchivedActivity struct {
	Scope      string    `json:"scope" gorm:"primaryKey;size:160"`
	Key        string    `json:"key" gorm:"column:entry_key;primaryKey;size:32"`
	EventID    string    `json:"eventId" gorm:"size:64;index"`
	AuctionID  string    `json:"auctionId" gorm:"size:128;index"`
	Type       string    `json:"type" gorm:"size:32"`
	UserID     string    `json:"userId" gorm:"size:128;index"`
	UserName   string    `json:"userName" gorm:"size:256"`
	Message    string    `json:"message" gorm:"type:text"`
	DataJSON   string    `json:"-" gorm:"type:text"`
	Timestamp  int64     `json:"timestamp" gorm:"index"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Entry converts the row back into an activity entry
func (a ArchivedActivity) Entry() model.ActivityEntry {
	e := model.ActivityEntry{
		Key:       a.Key,
		ID:        a.EventID,
		Type:      model.ActivityType(a.Type),
		AuctionID: a.AuctionID,
		UserID:    a.UserID,
		UserName:  a.UserName,
		Message:   a.Message,
		Timestamp: a.Timestamp,
	}
	if a.DataJSON != "" {
		_ = json.Unmarshal([]byte(a.DataJSON), &e.Data)
	}
	return e
}

// Store persists trimmed activity in a SQL database
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema. "sqlite:<path>" selects sqlite,
// postgres URLs and key=value DSNs select postgres.
func Open(dsn string) (*Store, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&ArchivedActivity{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("archive: unsupported dsn %q", dsn)
	}
}

// Archive stores entries trimmed from scope. Entries already archived are skipped.
func (s *Store) Archive(ctx context.Context, scope string, entries []model.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]ArchivedActivity, 0, len(entries))
	for _, e := range entries {
		var data []byte
		if len(e.Data) > 0 {
			var err error
			if data, err = json.Marshal(e.Data); err != nil {
				return fmt.Errorf("archive: encode data of %s: %w", e.Key, err)
			}
		}
		key := e.Key
		if key == "" {
			key = e.ID
		}
		rows = append(rows, ArchivedActivity{
			Scope:      scope,
			Key:        key,
			EventID:    e.ID,
			AuctionID:  e.AuctionID,
			Type:       string(e.Type),
			UserID:     e.UserID,
			UserName:   e.UserName,
			Message:    e.Message,
			DataJSON:   string(data),
			Timestamp:  e.Timestamp,
			ArchivedAt: now,
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("archive: insert %d rows: %w", len(rows), err)
	}
	return nil
}

// List returns archived entries newest first. An empty scope lists every stream.
func (s *Store) List(ctx context.Context, scope string, limit int) ([]model.ActivityEntry, error) {
	q := s.db.WithContext(ctx).Order("timestamp DESC").Order("entry_key DESC")
	if scope != "" {
		q = q.Where("scope = ?", scope)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []ArchivedActivity
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list %q: %w", scope, err)
	}
	entries := make([]model.ActivityEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.Entry())
	}
	return entries, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
