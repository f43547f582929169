// Package conn owns the single realtime connection a client process
// holds. The connection is dialed eagerly at startup and shared across
// room sessions; switching rooms never reconnects.
package conn

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zenwell/roomchat/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Reconnect backoff bounds.
	backoffMin = 500 * time.Millisecond
	backoffMax = 30 * time.Second
)

// ErrClosed is returned by Run after Close is called.
var ErrClosed = errors.New("conn: manager closed")

// Manager maintains one websocket connection for the lifetime of the
// client process, redialing with capped exponential backoff when the
// connection drops. Sends issued while disconnected are dropped and
// counted, never queued.
type Manager struct {
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	onEvent func(protocol.Event)
	onOpen  func()

	writeMu sync.Mutex

	dropped   atomic.Int64
	quit      chan struct{}
	closeOnce sync.Once
}

// New creates a Manager for the given websocket URL, e.g.
// "ws://localhost:8080/ws?user=alice". Call OnEvent and OnOpen before
// Run.
func New(url string) *Manager {
	return &Manager{
		url:  url,
		quit: make(chan struct{}),
	}
}

// OnEvent registers the sink for inbound events. Events are delivered
// from a single goroutine in the order they arrive on the wire.
func (m *Manager) OnEvent(fn func(protocol.Event)) {
	m.mu.Lock()
	m.onEvent = fn
	m.mu.Unlock()
}

// OnOpen registers a callback invoked after every successful dial,
// including reconnects. Sessions use it to rejoin their current room.
func (m *Manager) OnOpen(fn func()) {
	m.mu.Lock()
	m.onOpen = fn
	m.mu.Unlock()
}

// Run dials and services the connection until Close is called,
// redialing on failure. It blocks; call it in a goroutine.
func (m *Manager) Run() error {
	backoff := backoffMin
	for {
		select {
		case <-m.quit:
			return ErrClosed
		default:
		}

		c, _, err := websocket.DefaultDialer.Dial(m.url, nil)
		if err != nil {
			log.Printf("conn: dial %s: %v (retrying in %s)", m.url, err, backoff)
			select {
			case <-time.After(backoff):
			case <-m.quit:
				return ErrClosed
			}
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffMin

		// Close may have run while the dial was in flight.
		select {
		case <-m.quit:
			c.Close()
			return ErrClosed
		default:
		}

		m.mu.Lock()
		m.conn = c
		open := m.onOpen
		m.mu.Unlock()
		if open != nil {
			open()
		}

		m.readLoop(c)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
	}
}

// readLoop reads frames until the connection fails, delivering decoded
// events to the registered sink in arrival order.
func (m *Manager) readLoop(c *websocket.Conn) {
	defer c.Close()

	pingDone := make(chan struct{})
	defer close(pingDone)
	go m.pingLoop(c, pingDone)

	c.SetReadLimit(maxMessageSize)
	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("conn: read error: %v", err)
			}
			return
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			log.Printf("conn: bad frame: %v", err)
			continue
		}

		m.mu.Lock()
		sink := m.onEvent
		m.mu.Unlock()
		if sink != nil {
			sink(ev)
		}
	}
}

func (m *Manager) pingLoop(c *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.writeMu.Lock()
			c.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		case <-m.quit:
			return
		}
	}
}

// Send encodes and writes an event. If the connection is not open the
// event is dropped silently apart from the Dropped counter.
func (m *Manager) Send(ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		log.Printf("conn: encode: %v", err)
		return
	}

	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		m.dropped.Add(1)
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		m.dropped.Add(1)
	}
}

// Connected reports whether a live connection is currently held.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Dropped returns the number of outbound events discarded because no
// connection was open or the write failed.
func (m *Manager) Dropped() int64 {
	return m.dropped.Load()
}

// Close detaches the event sink, then closes the connection. Safe to
// call more than once; later calls are no-ops. Detaching first keeps
// teardown from firing callbacks into a dead session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.onEvent = nil
		m.onOpen = nil
		c := m.conn
		m.mu.Unlock()

		close(m.quit)
		if c != nil {
			m.writeMu.Lock()
			c.SetWriteDeadline(time.Now().Add(writeWait))
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			m.writeMu.Unlock()
			c.Close()
		}
	})
}
