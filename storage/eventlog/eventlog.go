// Package eventlog archives committed events in sqlite so the HTTP surface can
// replay them after the in-memory bus has moved on.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flightsurety/core/types"
)

// DefaultLimit caps List when the caller does not.
const DefaultLimit = 100

// MaxLimit is the largest page List returns.
const MaxLimit = 1000

// ErrPathRequired is returned when the archive DSN is missing.
var ErrPathRequired = errors.New("eventlog: path must be configured")

// Record is one archived event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index"`
	FlightKey  string    `gorm:"size:66;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name.
func (Record) TableName() string { return "events" }

// Entry is the decoded form of a Record.
type Entry struct {
	ID        uuid.UUID    `json:"id"`
	Seq       uint64       `json:"seq"`
	Event     *types.Event `json:"event"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Type      string
	FlightKey string
	// AfterSeq returns only events recorded after the given sequence.
	AfterSeq uint64
	Limit    int
}

// Store persists events through gorm.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// Open initialises the archive at dsn, a sqlite path or "file::memory:".
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := gorm.Open(sqlite.Open(trimmed), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db, nowFn: time.Now}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends evts in one transaction, preserving their order.
func (s *Store) Record(ctx context.Context, evts []*types.Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("eventlog: store not configured")
	}
	if len(evts) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last struct{ Seq uint64 }
		if err := tx.Model(&Record{}).Select("COALESCE(MAX(seq), 0) AS seq").Scan(&last).Error; err != nil {
			return err
		}
		now := s.nowFn().UTC()
		rows := make([]Record, 0, len(evts))
		for i, evt := range evts {
			if evt == nil {
				continue
			}
			attrs, err := json.Marshal(evt.Attributes)
			if err != nil {
				return err
			}
			rows = append(rows, Record{
				ID:         uuid.New(),
				Seq:        last.Seq + uint64(i) + 1,
				Type:       evt.Type,
				FlightKey:  evt.Attributes["flightKey"],
				Attributes: string(attrs),
				CreatedAt:  now,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// List returns archived events in sequence order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("eventlog: store not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	query := s.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", filter.AfterSeq)
	if kind := strings.TrimSpace(filter.Type); kind != "" {
		query = query.Where("type = ?", kind)
	}
	if key := strings.TrimSpace(filter.FlightKey); key != "" {
		query = query.Where("flight_key = ?", key)
	}
	var rows []Record
	if err := query.Order("seq ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		evt := types.NewEvent(row.Type)
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &evt.Attributes); err != nil {
				return nil, fmt.Errorf("decode event %s: %w", row.ID, err)
			}
		}
		out = append(out, Entry{ID: row.ID, Seq: row.Seq, Event: evt, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

// Count returns the number of archived events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("eventlog: store not configured")
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, err
}
