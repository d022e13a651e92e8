// Package relay forwards journaled scene messages to an upstream WebSocket
// hub instead of storing them.
//
// The upstream is a recorder or aggregator that accepts the
// {"type":"init","client":"relay"} hello followed by envelopes exactly as
// viewers receive them. A vizserver hub is not a valid upstream: it only
// routes {"type":...} messages and ignores envelopes.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/threepy/vizserver/internal/storage"
	"github.com/threepy/vizserver/pkg/streaming"
)

// Config holds relay settings.
type Config struct {
	URL              string
	QueueSize        int
	MaxReconnects    int
	InitialBackoff   time.Duration
	HandshakeTimeout time.Duration
}

// Backend mirrors every appended envelope upstream. It cannot replay.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a relay backend. Init dials.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = defaultAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = writeWait
	}
	return &Backend{
		conn: newConnection(cfg, logger.With("relay", cfg.URL)),
		cfg:  cfg,
	}
}

// Init connects to the upstream hub.
func (b *Backend) Init() error {
	if b.cfg.URL == "" {
		return fmt.Errorf("relay url not set")
	}
	return b.conn.dial()
}

// Close disconnects from the upstream hub.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Append queues env for the upstream hub.
func (b *Backend) Append(env streaming.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	return b.conn.send(data)
}

// Replay is unsupported.
func (b *Backend) Replay(func(streaming.Envelope) error) error {
	return storage.ErrReplayUnsupported
}

// Reset is a no-op; upstream state is not ours to clear.
func (b *Backend) Reset() error {
	return nil
}

// Connected reports whether the upstream socket is up.
func (b *Backend) Connected() bool {
	return b.conn.connected()
}
