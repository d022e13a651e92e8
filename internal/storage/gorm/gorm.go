// Package gormstorage journals scene messages to a SQL database through GORM.
// It works with any dialect internal/database can open.
package gormstorage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/threepy/vizserver/pkg/streaming"
)

const replayBatchSize = 500

// Entry is one journaled message.
type Entry struct {
	ID        uint           `gorm:"primarykey"`
	Seq       uint64         `gorm:"uniqueIndex;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time
}

// TableName overrides the default pluralized name.
func (Entry) TableName() string {
	return "scene_journal"
}

// Dependencies holds the collaborators of a Backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// CloseDB closes the connection pool on Close. Leave false when the
	// caller owns the DB.
	CloseDB bool
}

// Backend is a storage.Backend on top of a GORM connection.
type Backend struct {
	deps Dependencies

	mu  sync.Mutex
	seq uint64
}

// New creates a backend. Init must be called before use.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// Init migrates the journal table and resumes numbering after the last
// stored entry.
func (b *Backend) Init() error {
	if err := b.deps.DB.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}

	var last uint64
	if err := b.deps.DB.Model(&Entry{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return fmt.Errorf("read journal head: %w", err)
	}

	b.mu.Lock()
	b.seq = last
	b.mu.Unlock()

	b.deps.Logger.Info("Journal ready", "dialect", b.deps.DB.Dialector.Name(), "entries", last)
	return nil
}

// Close releases the connection pool when the backend owns it.
func (b *Backend) Close() error {
	if !b.deps.CloseDB {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append stores env with the next sequence number.
func (b *Backend) Append(env streaming.Envelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", env.Type, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry := Entry{
		Seq:     b.seq + 1,
		Type:    env.Type,
		Payload: datatypes.JSON(payload),
	}
	if err := b.deps.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	b.seq = entry.Seq
	return nil
}

// Replay visits stored entries in sequence order, reading them in batches.
// Payloads are handed out as json.RawMessage.
func (b *Backend) Replay(fn func(streaming.Envelope) error) error {
	var after uint64
	for {
		var rows []Entry
		err := b.deps.DB.Where("seq > ?", after).Order("seq").Limit(replayBatchSize).Find(&rows).Error
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		for _, row := range rows {
			if err := fn(streaming.NewEnvelope(row.Type, json.RawMessage(row.Payload))); err != nil {
				return err
			}
			after = row.Seq
		}
		if len(rows) < replayBatchSize {
			return nil
		}
	}
}

// Reset deletes every entry.
func (b *Backend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.deps.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	b.seq = 0
	return nil
}

// Len returns the number of stored entries.
func (b *Backend) Len() (int64, error) {
	var n int64
	err := b.deps.DB.Model(&Entry{}).Count(&n).Error
	return n, err
}
