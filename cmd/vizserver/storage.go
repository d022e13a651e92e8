package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"

	"github.com/threepy/vizserver/internal/config"
	"github.com/threepy/vizserver/internal/database"
	"github.com/threepy/vizserver/internal/storage"
	gormstorage "github.com/threepy/vizserver/internal/storage/gorm"
	"github.com/threepy/vizserver/internal/storage/memory"
	relaystorage "github.com/threepy/vizserver/internal/storage/relay"
	sqlitestorage "github.com/threepy/vizserver/internal/storage/sqlite"
)

// createJournal builds the backend named by cfg.Type. "none" returns a nil
// backend and no error.
func createJournal(cfg config.StorageConfig, logger *slog.Logger, infraLog zerolog.Logger) (storage.Backend, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "none":
		logger.Info("Scene journal disabled")
		return nil, nil

	case "memory":
		logger.Info("Memory scene journal initialized", "maxEntries", cfg.Memory.MaxEntries)
		return memory.New(memory.Config{
			MaxEntries:     cfg.Memory.MaxEntries,
			OutputDir:      cfg.Memory.OutputDir,
			CompressOutput: cfg.Memory.CompressOutput,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite journal: %w", err)
		}
		logger.Info("SQLite scene journal initialized", "path", cfg.SQLite.Path)
		return backend, nil

	case "postgres":
		// Falls back to SQLite at cfg.SQLite.Path when Postgres is down.
		mgr := database.NewManager(infraLog, cfg.SQLite.Path)
		if err := mgr.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect journal database: %w", err)
		}
		logger.Info("Database scene journal initialized", "dialect", mgr.DB.Dialector.Name())
		return gormstorage.New(gormstorage.Dependencies{
			DB:      mgr.DB,
			Logger:  logger,
			CloseDB: true,
		}), nil

	case "relay":
		logger.Info("Relay scene journal initialized", "url", cfg.Relay.URL)
		return relaystorage.New(relaystorage.Config{
			URL:           httpToWS(cfg.Relay.URL),
			QueueSize:     cfg.Relay.QueueSize,
			MaxReconnects: cfg.Relay.MaxReconnects,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(url string) string {
	s := strings.TrimSpace(url)
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
