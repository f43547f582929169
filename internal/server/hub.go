// Package server is the reference implementation of the room chat
// contract: the HTTP room directory plus the realtime channel. It
// exists so the client packages can be exercised against a real peer;
// cmd/devserver runs it standalone.
package server

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenwell/roomchat/internal/protocol"
	"github.com/zenwell/roomchat/internal/store"
)

// Member is one connected client as the hub sees it. Deliver is called
// with the hub lock held and must never block; wsMember drops on a
// full send buffer.
type Member interface {
	Username() string
	Deliver(ev protocol.Event)
}

// Hub tracks connected members, room membership and the room
// directory. A member is in at most one room at a time; joining a room
// implicitly leaves the previous one. There is no leave signal on the
// wire: a client that leaves simply stops being interested until its
// next join or its disconnect.
//
// Every event is published while h.mu is held, so all members observe
// hub events in one global order. In particular a joiner's history is
// on its send queue before any broadcaster can see it as part of a
// room's audience, and directory snapshots reach each member in
// creation order.
type Hub struct {
	store      store.Store
	maxHistory int

	mu      sync.Mutex
	members map[Member]string          // member -> current room id ("" = directory)
	rooms   map[string]map[Member]bool // room id -> members
	dir     []protocol.Room
}

// New creates a Hub backed by the given store, loading the existing
// room directory from it.
func New(s store.Store, maxHistory int) (*Hub, error) {
	dir, err := s.Rooms()
	if err != nil {
		return nil, err
	}
	return &Hub{
		store:      s,
		maxHistory: maxHistory,
		members:    make(map[Member]string),
		rooms:      make(map[string]map[Member]bool),
		dir:        dir,
	}, nil
}

// Connect registers a member and sends it the current room directory.
func (h *Hub) Connect(m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.members[m] = ""
	m.Deliver(protocol.Event{Type: protocol.EvRooms, Rooms: append([]protocol.Room(nil), h.dir...)})
}

// Disconnect removes a member, updating presence in the room it was in.
func (h *Hub) Disconnect(m Member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.members[m]
	if !ok {
		return
	}
	delete(h.members, m)
	if room != "" {
		delete(h.rooms[room], m)
		h.broadcastPresenceLocked(room)
	}
}

// Join moves a member into a room, sends it the message history, and
// broadcasts updated presence counts to both affected rooms. History
// is read and delivered under the lock: a chat broadcast that finds
// the joiner in its audience is therefore already behind the history
// on the joiner's queue, and a chat broadcast that missed it is in the
// history it read.
func (h *Hub) Join(m Member, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.roomExistsLocked(roomID) {
		m.Deliver(protocol.Event{Type: protocol.EvError, Message: "room not found"})
		return
	}

	prev := h.members[m]
	if prev == roomID {
		// Rejoin of the current room: just replay history and presence.
		prev = ""
	}
	if prev != "" {
		delete(h.rooms[prev], m)
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[Member]bool)
	}
	h.rooms[roomID][m] = true
	h.members[m] = roomID

	msgs, err := h.store.History(roomID, h.maxHistory)
	if err != nil {
		log.Printf("hub: history for %s: %v", roomID, err)
		msgs = nil
	}
	m.Deliver(protocol.Event{Type: protocol.EvHistory, Room: roomID, Messages: msgs})

	if prev != "" {
		h.broadcastPresenceLocked(prev)
	}
	h.broadcastPresenceLocked(roomID)
}

// Chat persists a message and broadcasts it to the sender's room. The
// sender hears its own message back; clients render on the echo.
func (h *Hub) Chat(m Member, roomID, text string) {
	if strings.TrimSpace(text) == "" {
		m.Deliver(protocol.Event{Type: protocol.EvError, Message: "text required"})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.members[m] != roomID || roomID == "" {
		m.Deliver(protocol.Event{Type: protocol.EvError, Message: "not in room"})
		return
	}

	msg := protocol.ChatMessage{
		User:      m.Username(),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := h.store.SaveMessage(roomID, msg); err != nil {
		log.Printf("hub: save message: %v", err)
	}

	ev := protocol.Event{
		Type:      protocol.EvChat,
		Room:      roomID,
		User:      msg.User,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
	for member := range h.rooms[roomID] {
		member.Deliver(ev)
	}
}

// Typing relays a typing signal to the sender's room.
func (h *Hub) Typing(m Member, roomID string) {
	h.relay(m, roomID, protocol.Event{Type: protocol.EvTyping, Room: roomID, User: m.Username()})
}

// StopTyping relays a stop-typing signal to the sender's room.
func (h *Hub) StopTyping(m Member, roomID string) {
	h.relay(m, roomID, protocol.Event{Type: protocol.EvStopTyping, Room: roomID})
}

func (h *Hub) relay(m Member, roomID string, ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.members[m] != roomID || roomID == "" {
		return
	}
	for member := range h.rooms[roomID] {
		if member != m {
			member.Deliver(ev)
		}
	}
}

// CreateRoom persists a new room and pushes the updated directory to
// every connected member, the creator included. Duplicate names are
// allowed; the id is what identifies a room.
func (h *Hub) CreateRoom(name string) (protocol.Room, error) {
	room := protocol.Room{ID: uuid.NewString(), Name: strings.TrimSpace(name)}
	if err := h.store.CreateRoom(room); err != nil {
		return protocol.Room{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.dir = append(h.dir, room)
	log.Printf("room created: %s (%s)", room.Name, room.ID)
	ev := protocol.Event{Type: protocol.EvRooms, Rooms: append([]protocol.Room(nil), h.dir...)}
	for m := range h.members {
		m.Deliver(ev)
	}
	return room, nil
}

// Rooms returns the current directory.
func (h *Hub) Rooms() []protocol.Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Room(nil), h.dir...)
}

// Count returns the number of members currently in a room.
func (h *Hub) Count(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

func (h *Hub) roomExistsLocked(roomID string) bool {
	for _, r := range h.dir {
		if r.ID == roomID {
			return true
		}
	}
	return false
}

func (h *Hub) broadcastPresenceLocked(roomID string) {
	ev := protocol.Event{Type: protocol.EvPresence, Room: roomID, Count: len(h.rooms[roomID])}
	for m := range h.rooms[roomID] {
		m.Deliver(ev)
	}
}
