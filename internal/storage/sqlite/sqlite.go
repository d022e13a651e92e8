// Package sqlitestorage journals to a SQLite database through the GORM
// backend. With no path the database lives in memory and is optionally
// dumped to disk on an interval via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/threepy/vizserver/internal/database"
	gormstorage "github.com/threepy/vizserver/internal/storage/gorm"
)

// Config holds configuration for the SQLite journal.
type Config struct {
	// Path of the database file. Empty means in memory.
	Path         string
	DumpInterval time.Duration
	DumpPath     string
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// New opens the database and creates the backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := database.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}

	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:      db,
			Logger:  logger,
			CloseDB: true,
		}),
		db:       db,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the DB.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	if b.cfg.DumpPath != "" {
		if err := b.Dump(); err != nil {
			b.logger.Error("Final journal dump failed", "error", err)
		}
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time copy of the database to DumpPath.
func (b *Backend) Dump() error {
	return database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath)
}

func (b *Backend) dumpLoop() {
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.logger.Error("Error dumping journal to disk", "error", err)
			} else {
				b.logger.Debug("Dumped journal to disk", "path", b.cfg.DumpPath, "took", time.Since(start))
			}
		}
	}
}
