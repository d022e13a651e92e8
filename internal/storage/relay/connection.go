package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/threepy/vizserver/pkg/streaming"
)

const (
	defaultQueueSize = 4096
	defaultAttempts  = 10
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
	writeWait        = 10 * time.Second
)

// connection manages the upstream socket with a single write goroutine.
type connection struct {
	mu      sync.Mutex
	conn    *ws.Conn
	session chan struct{} // closed when conn is replaced
	sendCh  chan []byte
	done    chan struct{} // closed on shutdown
	closed  bool

	url          string
	maxAttempts  int
	backoffStart time.Duration
	dialer       *ws.Dialer
	hello        []byte

	logger *slog.Logger
}

func newConnection(cfg Config, logger *slog.Logger) *connection {
	hello, _ := json.Marshal(streaming.InboundMessage{Type: streaming.TypeInit, Client: streaming.ClientRelay})
	return &connection{
		sendCh:       make(chan []byte, cfg.QueueSize),
		done:         make(chan struct{}),
		url:          cfg.URL,
		maxAttempts:  cfg.MaxReconnects,
		backoffStart: cfg.InitialBackoff,
		dialer:       &ws.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		hello:        hello,
		logger:       logger,
	}
}

// dial connects upstream, announces itself and starts the loops.
func (c *connection) dial() error {
	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	if !c.start(conn) {
		return fmt.Errorf("relay closed")
	}
	return nil
}

// start installs conn as the live socket and runs its loops. It returns
// false, closing conn, if the relay was shut down meanwhile.
func (c *connection) start(conn *ws.Conn) bool {
	session := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	c.conn = conn
	c.session = session
	c.mu.Unlock()

	go c.writeLoop(conn, session)
	go c.readLoop(conn)
	return true
}

// dialOnce performs a single dial followed by the init handshake.
func (c *connection) dialOnce() (*ws.Conn, error) {
	conn, _, err := c.dialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("relay dial failed: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteMessage(ws.TextMessage, c.hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("relay handshake failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh to conn until shutdown or until conn is
// replaced. On a write error a reconnect takes over.
func (c *connection) writeLoop(conn *ws.Conn, session chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-session:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("Relay SetWriteDeadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("Relay write error, message lost", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop discards upstream frames; it exists to process control frames
// and notice a dead peer.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("Relay read error", "error", err)
			go c.reconnect(conn)
			return
		}
		c.logger.Debug("Upstream message ignored", "raw", string(message))
	}
}

// reconnect replaces failed with a new socket, backing off exponentially.
// Only the first caller for a given socket does the work.
func (c *connection) reconnect(failed *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != failed {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	close(c.session)
	c.mu.Unlock()

	backoff := c.backoffStart
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to relay", "attempt", attempt)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Relay reconnect failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		if !c.start(conn) {
			return
		}
		c.logger.Info("Relay reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("Relay reconnect gave up", "maxAttempts", c.maxAttempts)
}

// send pushes data to the write loop. It never blocks.
func (c *connection) send(data []byte) error {
	select {
	case <-c.done:
		return fmt.Errorf("relay closed")
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		return fmt.Errorf("relay queue full (%d messages)", cap(c.sendCh))
	}
}

// close sends a close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}

// connected reports whether a socket is currently up.
func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
