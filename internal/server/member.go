package server

import (
	"log"
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
)

// wsMember is a connected websocket client. It implements Member.
type wsMember struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	username string
}

func newMember(h *Hub, conn *websocket.Conn, username string) *wsMember {
	return &wsMember{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		username: username,
	}
}

// Username returns the member's username.
func (m *wsMember) Username() string {
	return m.username
}

// Deliver queues an event to be sent to the member.
func (m *wsMember) Deliver(ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		log.Printf("member %s: encode: %v", m.username, err)
		return
	}
	select {
	case m.send <- data:
	default:
		// Member send buffer full, drop event.
		log.Printf("member %s: send buffer full, dropping event", m.username)
	}
}

// readPump reads events from the connection and routes them to the hub.
func (m *wsMember) readPump() {
	defer func() {
		m.hub.Disconnect(m)
		m.conn.Close()
	}()

	m.conn.SetReadLimit(maxMessageSize)
	m.conn.SetReadDeadline(time.Now().Add(pongWait))
	m.conn.SetPongHandler(func(string) error {
		m.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("member %s: read error: %v", m.username, err)
			}
			return
		}
		m.handleFrame(data)
	}
}

// writePump writes queued events to the connection.
func (m *wsMember) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.conn.Close()
	}()

	for {
		select {
		case data, ok := <-m.send:
			m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				m.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *wsMember) handleFrame(data []byte) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		m.Deliver(protocol.Event{Type: protocol.EvError, Message: "invalid JSON"})
		return
	}

	switch ev.Type {
	case protocol.EvJoin:
		if ev.Room == "" {
			m.Deliver(protocol.Event{Type: protocol.EvError, Message: "room required"})
			return
		}
		m.hub.Join(m, ev.Room)

	case protocol.EvChat:
		m.hub.Chat(m, ev.Room, ev.Text)

	case protocol.EvTyping:
		m.hub.Typing(m, ev.Room)

	case protocol.EvStopTyping:
		m.hub.StopTyping(m, ev.Room)

	default:
		m.Deliver(protocol.Event{Type: protocol.EvError, Message: "unknown event type: " + ev.Type})
	}
}
