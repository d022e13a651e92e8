package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/threepy/vizserver/internal/queue"
)

var errOutboxFull = fmt.Errorf("%w: outbox full", ErrConnectionClosed)

// ConnState is the lifecycle state of a viewer connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Role distinguishes renderer clients that completed the init handshake.
type Role string

const (
	RoleClient     Role = "client"
	RoleVisualizer Role = "visualizer"
)

// ConnInfo is a read-only view of a connection.
type ConnInfo struct {
	ID          string
	Role        Role
	Remote      string
	ConnectedAt time.Time
}

// Conn is one viewer WebSocket. Outbound frames go through a FIFO outbox
// drained by a single write goroutine, so frames reach the socket in the
// order they were enqueued. Enqueueing never waits on the socket; a viewer
// that stops reading is dropped when a write exceeds writeWait or the
// outbox holds maxPending frames.
type Conn struct {
	id          string
	ws          *ws.Conn
	outbox      *queue.Queue[[]byte]
	maxPending  int
	wake        chan struct{} // outbox has frames
	drained     chan struct{} // writer emptied the outbox
	done        chan struct{} // closed on transition to StateClosed
	remote      string
	connectedAt time.Time
	writeWait   time.Duration

	mu    sync.Mutex
	state ConnState
	role  Role
}

func newConn(id string, c *ws.Conn, maxPending int, writeWait time.Duration) *Conn {
	if maxPending < 1 {
		maxPending = 1
	}
	return &Conn{
		id:          id,
		ws:          c,
		outbox:      queue.New[[]byte](),
		maxPending:  maxPending,
		wake:        make(chan struct{}, 1),
		drained:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		remote:      c.RemoteAddr().String(),
		connectedAt: time.Now(),
		writeWait:   writeWait,
		state:       StateConnecting,
		role:        RoleClient,
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Role returns the negotiated client role.
func (c *Conn) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Conn) setRole(r Role) {
	c.mu.Lock()
	c.role = r
	c.mu.Unlock()
}

func (c *Conn) info() ConnInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnInfo{ID: c.id, Role: c.role, Remote: c.remote, ConnectedAt: c.connectedAt}
}

func (c *Conn) markOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateOpen
	return true
}

// enqueue hands data to the write goroutine without blocking.
func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ErrConnectionClosed
	}
	if c.outbox.Len() >= c.maxPending {
		return fmt.Errorf("%w (%d frames)", errOutboxFull, c.maxPending)
	}
	c.push(data)
	return nil
}

// push queues data and wakes the writer. c.mu must be held.
func (c *Conn) push(data []byte) {
	c.outbox.Push(data)
	signal(c.wake)
}

// enqueueWait hands data to the write goroutine, waiting while the outbox
// is at maxPending. The state check and the push happen under one lock, so
// a closed connection never accepts a frame.
func (c *Conn) enqueueWait(ctx context.Context, data []byte) error {
	for {
		c.mu.Lock()
		if c.state != StateOpen {
			c.mu.Unlock()
			return ErrConnectionClosed
		}
		if c.outbox.Len() < c.maxPending {
			c.push(data)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrConnectionClosed
		case <-c.drained:
		}
	}
}

// Pending returns the number of frames waiting for the writer.
func (c *Conn) Pending() int {
	return c.outbox.Len()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// close moves the connection to StateClosed, sends a close frame and tears
// down the socket. Only the first call does anything; it returns true.
func (c *Conn) close(code int) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	close(c.done)
	c.mu.Unlock()

	_ = c.ws.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(code, ""),
		time.Now().Add(c.writeWait),
	)
	_ = c.ws.Close()
	return true
}

// writeLoop drains the outbox in batches and writes frames to the socket.
// It returns on write error or once the connection is closed; queued frames
// are abandoned.
func (c *Conn) writeLoop(m *Manager) {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for _, data := range c.outbox.GetAndEmpty() {
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				m.drop(c, ws.CloseInternalServerErr, fmt.Errorf("set write deadline: %w", err))
				return
			}
			if err := c.ws.WriteMessage(ws.TextMessage, data); err != nil {
				m.recordFailed("")
				m.drop(c, ws.CloseInternalServerErr, fmt.Errorf("write: %w", err))
				return
			}
			m.recordSent()
		}
		signal(c.drained)
	}
}

// readLoop reads frames until the connection ends. Each frame is handled
// before the next read is issued.
func (c *Conn) readLoop(m *Manager) {
	if m.cfg.ReadLimit > 0 {
		c.ws.SetReadLimit(m.cfg.ReadLimit)
	}
	for {
		if m.cfg.IdleTimeout > 0 {
			if err := c.ws.SetReadDeadline(time.Now().Add(m.cfg.IdleTimeout)); err != nil {
				m.drop(c, ws.CloseInternalServerErr, fmt.Errorf("set read deadline: %w", err))
				return
			}
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway, ws.CloseNoStatusReceived) {
				m.drop(c, ws.CloseNormalClosure, err)
			} else {
				m.drop(c, ws.CloseNormalClosure, fmt.Errorf("read: %w", err))
			}
			return
		}

		m.handleInbound(c, message)
	}
}
