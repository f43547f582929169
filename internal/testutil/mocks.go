package testutil

import (
	"sync"

	"github.com/zenwell/roomchat/internal/protocol"
)

// RecordingSender implements session.Sender for testing, recording
// every outbound event.
type RecordingSender struct {
	mu     sync.Mutex
	events []protocol.Event
}

// NewRecordingSender creates a new RecordingSender.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// Send records an outbound event.
func (r *RecordingSender) Send(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of all recorded events.
func (r *RecordingSender) Events() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.events...)
}

// ByType returns recorded events of the given type.
func (r *RecordingSender) ByType(typ string) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// MemberSink implements server.Member for testing, recording every
// event the hub sends to it.
type MemberSink struct {
	Name   string
	mu     sync.Mutex
	events []protocol.Event
}

// NewMemberSink creates a MemberSink with the given username.
func NewMemberSink(name string) *MemberSink {
	return &MemberSink{Name: name}
}

// Username returns the sink's username.
func (m *MemberSink) Username() string { return m.Name }

// Deliver records an event sent to the member.
func (m *MemberSink) Deliver(ev protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of all delivered events.
func (m *MemberSink) Events() []protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Event(nil), m.events...)
}

// ByType returns delivered events of the given type.
func (m *MemberSink) ByType(typ string) []protocol.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []protocol.Event
	for _, ev := range m.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// MemoryStore implements store.Store in memory for testing.
type MemoryStore struct {
	mu       sync.Mutex
	rooms    []protocol.Room
	messages map[string][]protocol.ChatMessage
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]protocol.ChatMessage)}
}

// CreateRoom records a room.
func (s *MemoryStore) CreateRoom(room protocol.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = append(s.rooms, room)
	return nil
}

// Rooms returns all recorded rooms in creation order.
func (s *MemoryStore) Rooms() ([]protocol.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Room(nil), s.rooms...), nil
}

// SaveMessage records a message for a room.
func (s *MemoryStore) SaveMessage(roomID string, msg protocol.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[roomID] = append(s.messages[roomID], msg)
	return nil
}

// History returns the last limit messages for a room, oldest first.
func (s *MemoryStore) History(roomID string, limit int) ([]protocol.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]protocol.ChatMessage(nil), msgs...), nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
