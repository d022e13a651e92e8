// Package hub accepts viewer WebSocket connections, tracks the open set and
// fans protocol messages out to it.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/threepy/vizserver/internal/dispatcher"
	"github.com/threepy/vizserver/pkg/streaming"
)

var (
	// ErrConnectionClosed is returned when sending to a connection that is
	// not open.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrManagerStopped is returned by every send after Stop.
	ErrManagerStopped = errors.New("manager stopped")
)

const shutdownTimeout = 5 * time.Second

// Config holds listener and per-connection settings.
type Config struct {
	Host string
	Port int
	Path string

	// MaxPending is the most frames a connection may have queued before it
	// is dropped as a slow consumer.
	MaxPending int
	WriteWait  time.Duration
	// IdleTimeout closes connections that send nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	ReadLimit   int64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Port:       8001,
		Path:       "/",
		MaxPending: 65536,
		WriteWait:  10 * time.Second,
		ReadLimit:  1 << 20,
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Stats is a snapshot of the manager counters.
type Stats struct {
	Active int
	Opened uint64
	Closed uint64
	Sent   uint64
	Failed uint64
}

// Manager owns the set of open viewer connections.
type Manager struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher
	upgrader   ws.Upgrader
	metrics    *metrics

	mu           sync.Mutex
	conns        []*Conn // arrival order
	stopped      bool
	server       *http.Server
	onVisualizer func(connID string)

	opened atomic.Uint64
	closed atomic.Uint64
	sent   atomic.Uint64
	failed atomic.Uint64
}

// New creates a Manager. The returned manager handles the init handshake;
// further inbound types can be registered on Dispatcher().
func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaults.MaxPending
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.Path == "" {
		cfg.Path = defaults.Path
	}

	d, err := dispatcher.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	m := &Manager{
		cfg:        cfg,
		logger:     logger,
		dispatcher: d,
		upgrader: ws.Upgrader{
			// Viewers are served from arbitrary dev origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	m.metrics, err = newMetrics(m)
	if err != nil {
		return nil, err
	}

	d.Register(streaming.TypeInit, m.handleInit, dispatcher.Logged())
	return m, nil
}

// Dispatcher returns the inbound message router.
func (m *Manager) Dispatcher() *dispatcher.Dispatcher {
	return m.dispatcher
}

// OnVisualizer sets a callback run when a connection identifies itself as a
// visualizer. It runs on that connection's read goroutine.
func (m *Manager) OnVisualizer(fn func(connID string)) {
	m.mu.Lock()
	m.onVisualizer = fn
	m.mu.Unlock()
}

// ListenAndServe accepts connections on the configured address until ctx is
// done or Stop is called.
func (m *Manager) ListenAndServe(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	mux := http.NewServeMux()
	mux.Handle(m.cfg.Path, m)
	srv := &http.Server{
		Addr:              m.cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.server = srv
	m.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		m.logger.Info("Listening for viewers", "addr", srv.Addr, "path", m.cfg.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		m.Stop()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		http.Error(w, ErrManagerStopped.Error(), http.StatusServiceUnavailable)
		return
	}

	wsConn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.New().String(), wsConn, m.cfg.MaxPending, m.cfg.WriteWait)
	if !m.open(c) {
		c.close(ws.CloseGoingAway)
		return
	}

	go c.writeLoop(m)
	c.readLoop(m)
}

// open appends c to the active set and marks it open.
func (m *Manager) open(c *Conn) bool {
	m.mu.Lock()
	if m.stopped || !c.markOpen() {
		m.mu.Unlock()
		return false
	}
	m.conns = append(m.conns, c)
	m.mu.Unlock()

	m.opened.Add(1)
	m.metrics.opened.Add(context.Background(), 1)
	m.logger.Info("Viewer connected", "conn", c.id, "remote", c.remote)
	return true
}

// drop removes c from the active set and closes it. Safe to call more than
// once and from any goroutine.
func (m *Manager) drop(c *Conn, code int, reason error) {
	m.mu.Lock()
	if i := slices.Index(m.conns, c); i >= 0 {
		m.conns = slices.Delete(m.conns, i, i+1)
	}
	m.mu.Unlock()

	if c.close(code) {
		m.closed.Add(1)
		m.metrics.closed.Add(context.Background(), 1)
		m.logger.Info("Viewer disconnected", "conn", c.id, "reason", reason)
	}
}

func (m *Manager) find(id string) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.id == id {
			return c
		}
	}
	return nil
}

// Broadcast enqueues env for every connection open at call time. A
// connection that cannot take the message is closed and removed; that
// failure is not returned.
func (m *Manager) Broadcast(env streaming.Envelope) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	targets := slices.Clone(m.conns)
	m.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	for _, c := range targets {
		if err := c.enqueue(data); err != nil {
			if !errors.Is(err, errOutboxFull) {
				// Closed since the snapshot was taken.
				continue
			}
			m.recordFailed(env.Type)
			m.logger.Warn("Send failed, dropping viewer", "conn", c.id, "type", env.Type, "error", err)
			m.drop(c, ws.CloseTryAgainLater, err)
		}
	}
	return nil
}

// SendTo enqueues env for a single connection.
func (m *Manager) SendTo(connID string, env streaming.Envelope) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	m.mu.Unlock()

	c := m.find(connID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, connID)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	if err := c.enqueue(data); err != nil {
		m.recordFailed(env.Type)
		m.drop(c, ws.CloseTryAgainLater, err)
		return err
	}
	return nil
}

// SendToWait is SendTo for bulk transfers: instead of failing on a full
// outbox it waits for room until ctx is done.
func (m *Manager) SendToWait(ctx context.Context, connID string, env streaming.Envelope) error {
	if m.Stopped() {
		return ErrManagerStopped
	}

	c := m.find(connID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, connID)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	if err := c.enqueueWait(ctx, data); err != nil {
		m.recordFailed(env.Type)
		return err
	}
	return nil
}

// Count returns the number of open connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Connections returns the open connections in arrival order.
func (m *Manager) Connections() []ConnInfo {
	m.mu.Lock()
	conns := slices.Clone(m.conns)
	m.mu.Unlock()

	out := make([]ConnInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.info())
	}
	return out
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Active: m.Count(),
		Opened: m.opened.Load(),
		Closed: m.closed.Load(),
		Sent:   m.sent.Load(),
		Failed: m.failed.Load(),
	}
}

// Stopped reports whether Stop has been called.
func (m *Manager) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Stop shuts down the listener and closes every open connection. Frames
// still queued are abandoned. Later sends return ErrManagerStopped.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	conns := m.conns
	m.conns = nil
	srv := m.server
	m.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			m.logger.Warn("Listener shutdown failed", "error", err)
		}
		cancel()
	}

	for _, c := range conns {
		m.drop(c, ws.CloseGoingAway, ErrManagerStopped)
	}
	m.logger.Info("Viewer hub stopped", "closed", len(conns))
}

func (m *Manager) recordSent() {
	m.sent.Add(1)
	m.metrics.sent.Add(context.Background(), 1)
}

func (m *Manager) recordFailed(msgType string) {
	m.failed.Add(1)
	m.metrics.failed.Add(context.Background(), 1, typeAttr(msgType))
}

// handleInbound decodes a client frame and routes it by type. Frames that
// are not JSON objects or have no handler are only logged.
func (m *Manager) handleInbound(c *Conn, raw []byte) {
	m.logger.Debug("Received message", "conn", c.id, "raw", string(raw))

	var msg streaming.InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.Debug("Non-JSON message received", "conn", c.id, "error", err)
		return
	}

	err := m.dispatcher.Dispatch(dispatcher.Event{
		Type:      msg.Type,
		ConnID:    c.id,
		Raw:       raw,
		Timestamp: time.Now(),
	})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrUnknownType):
		m.logger.Debug("Unhandled message type", "conn", c.id, "type", msg.Type)
	default:
		m.logger.Warn("Inbound message failed", "conn", c.id, "type", msg.Type, "error", err)
	}
}

// handleInit acknowledges the client handshake. A visualizer client is
// marked as such and announced to the OnVisualizer callback.
func (m *Manager) handleInit(e dispatcher.Event) error {
	var msg streaming.InboundMessage
	if err := json.Unmarshal(e.Raw, &msg); err != nil {
		return fmt.Errorf("decode init: %w", err)
	}

	m.logger.Info("Client initialized", "conn", e.ConnID, "client", msg.Client)
	if msg.Client != streaming.ClientVisualizer {
		return nil
	}

	c := m.find(e.ConnID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, e.ConnID)
	}
	c.setRole(RoleVisualizer)

	m.mu.Lock()
	fn := m.onVisualizer
	m.mu.Unlock()
	if fn != nil {
		fn(e.ConnID)
	}
	return nil
}
