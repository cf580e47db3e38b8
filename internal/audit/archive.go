package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// FileArchiver appends evicted events to a JSON-lines file
type FileArchiver struct {
	path string
	mu   sync.Mutex
}

// NewFileArchiver creates an archiver writing to path
func NewFileArchiver(path string) (*FileArchiver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &FileArchiver{path: path}, nil
}

// Archive appends one line per event
func (a *FileArchiver) Archive(ctx context.Context, events []Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("append archived event %d: %w", e.Sequence, err)
		}
	}
	return f.Sync()
}

// ArchivedEvent is the database row for an evicted audit event
type ArchivedEvent struct {
	ID        uint      `gorm:"primaryKey"`
	EventID   string    `gorm:"uniqueIndex;not null"`
	Sequence  uint64    `gorm:"index;not null"`
	EventType string    `gorm:"index;not null"`
	Timestamp time.Time `gorm:"index"`
	Component string
	UserID    string
	Details   string `gorm:"type:text"`
	Encrypted bool
	PrevHash  string
	Hash      string
}

// TableName sets the table name
func (ArchivedEvent) TableName() string { return "audit_archive" }

// GormArchiver persists evicted events to a SQL database
type GormArchiver struct {
	db *gorm.DB
}

// OpenSQLiteArchiver opens (or creates) a sqlite archive at path
func OpenSQLiteArchiver(path string) (*GormArchiver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit archive: %w", err)
	}
	return NewGormArchiver(db)
}

// NewGormArchiver migrates the archive table on db
func NewGormArchiver(db *gorm.DB) (*GormArchiver, error) {
	if err := db.AutoMigrate(&ArchivedEvent{}); err != nil {
		return nil, fmt.Errorf("migrate audit archive: %w", err)
	}
	return &GormArchiver{db: db}, nil
}

// Archive inserts the batch in one transaction
func (a *GormArchiver) Archive(ctx context.Context, events []Event) error {
	rows := make([]ArchivedEvent, 0, len(events))
	for _, e := range events {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal details of event %d: %w", e.Sequence, err)
		}
		rows = append(rows, ArchivedEvent{
			EventID:   e.ID,
			Sequence:  e.Sequence,
			EventType: string(e.Type),
			Timestamp: e.Timestamp,
			Component: e.Component,
			UserID:    e.UserID,
			Details:   string(details),
			Encrypted: e.Encrypted,
			PrevHash:  e.PrevHash,
			Hash:      e.Hash,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return a.db.WithContext(ctx).Create(&rows).Error
}

// Load returns archived events in sequence order, optionally filtered
func (a *GormArchiver) Load(ctx context.Context, filter EventType, limit int) ([]Event, error) {
	q := a.db.WithContext(ctx).Order("sequence asc")
	if filter != "" {
		q = q.Where("event_type = ?", string(filter))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []ArchivedEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load audit archive: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		var details map[string]interface{}
		if err := json.Unmarshal([]byte(r.Details), &details); err != nil {
			return nil, fmt.Errorf("decode details of event %d: %w", r.Sequence, err)
		}
		events = append(events, Event{
			ID:        r.EventID,
			Sequence:  r.Sequence,
			Type:      EventType(r.EventType),
			Timestamp: r.Timestamp,
			Component: r.Component,
			UserID:    r.UserID,
			Details:   details,
			Encrypted: r.Encrypted,
			PrevHash:  r.PrevHash,
			Hash:      r.Hash,
		})
	}
	return events, nil
}

// Close releases the underlying connection pool
func (a *GormArchiver) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
