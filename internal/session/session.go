// Package session holds a client's view of the room it is in: the
// message list, the current typer, the online count, and the room
// directory. All mutation happens through its methods; the connection
// manager's read goroutine is the only event producer, so events are
// applied strictly in arrival order.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/zenwell/roomchat/internal/protocol"
)

// State is the room session state.
type State int

const (
	// StateDirectory means no room is joined; the directory view.
	StateDirectory State = iota
	// StateJoining means the join was sent but history has not arrived.
	StateJoining
	// StateInRoom means history arrived and live updates are flowing.
	StateInRoom
)

func (s State) String() string {
	switch s {
	case StateDirectory:
		return "directory"
	case StateJoining:
		return "joining"
	case StateInRoom:
		return "in-room"
	}
	return "unknown"
}

// Sender carries outbound events to the server. *conn.Manager satisfies
// it; tests substitute a recorder.
type Sender interface {
	Send(ev protocol.Event)
}

// Session is the client-local room state machine.
type Session struct {
	username      string
	sender        Sender
	typingTimeout time.Duration

	mu          sync.Mutex
	state       State
	room        string
	messages    []protocol.ChatMessage
	rooms       []protocol.Room
	typingUser  string // single slot, last writer wins
	onlineCount int

	typingTimer *time.Timer
	// typingGen invalidates armed timers. It is bumped on every
	// keystroke, submit, join and leave; a timer callback that carries
	// a stale generation emits nothing, so a timer armed in one room
	// can never fire into another, and a timer that races Stop cannot
	// sneak in a premature stop-typing.
	typingGen uint64
}

// Snapshot is a copy of the session state safe to render from.
type Snapshot struct {
	Username    string
	State       State
	Room        string
	Messages    []protocol.ChatMessage
	Rooms       []protocol.Room
	TypingUser  string
	OnlineCount int
}

// New creates a session for the given username. The username is fixed
// for the lifetime of the session. typingTimeout is how long after the
// last keystroke the stop-typing signal fires.
func New(username string, sender Sender, typingTimeout time.Duration) *Session {
	return &Session{
		username:      username,
		sender:        sender,
		typingTimeout: typingTimeout,
		state:         StateDirectory,
	}
}

// JoinRoom sends the join signal and transitions to Joining. Local
// message state is cleared immediately so the previous room's messages
// never show while the new history is in flight.
func (s *Session) JoinRoom(roomID string) {
	s.mu.Lock()
	s.cancelTypingLocked()
	s.state = StateJoining
	s.room = roomID
	s.messages = nil
	s.typingUser = ""
	s.onlineCount = 0
	s.mu.Unlock()

	s.sender.Send(protocol.Event{Type: protocol.EvJoin, User: s.username, Room: roomID})
}

// LeaveRoom returns to the directory view. The shared connection stays
// open. Any pending stop-typing timer is cancelled so it cannot fire
// into the abandoned room.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	s.cancelTypingLocked()
	s.state = StateDirectory
	s.room = ""
	s.messages = nil
	s.typingUser = ""
	s.onlineCount = 0
	s.mu.Unlock()
}

// Rejoin re-sends the join signal for the current room, if any. The
// connection manager calls this after a reconnect; the server answers
// with a fresh history event.
func (s *Session) Rejoin() {
	s.mu.Lock()
	if s.room == "" {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.state = StateJoining
	s.mu.Unlock()

	s.sender.Send(protocol.Event{Type: protocol.EvJoin, User: s.username, Room: room})
}

// SendMessage submits a chat message. No-op unless in a room and the
// trimmed text is non-empty. There is no optimistic local append; the
// message shows up when the server's broadcast echoes it back.
// Submitting also ends the typing state immediately.
func (s *Session) SendMessage(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.state != StateInRoom {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.cancelTypingLocked()
	s.mu.Unlock()

	s.sender.Send(protocol.Event{Type: protocol.EvChat, User: s.username, Text: text, Room: room})
	s.sender.Send(protocol.Event{Type: protocol.EvStopTyping, Room: room})
}

// Keystroke reports one keystroke in the message input. It emits a
// typing signal immediately and (re)arms a single timer that emits
// stop-typing once typingTimeout passes with no further keystrokes.
func (s *Session) Keystroke() {
	s.mu.Lock()
	if s.state != StateInRoom {
		s.mu.Unlock()
		return
	}
	room := s.room

	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingGen++
	gen := s.typingGen
	s.typingTimer = time.AfterFunc(s.typingTimeout, func() {
		s.typingExpired(room, gen)
	})
	s.mu.Unlock()

	s.sender.Send(protocol.Event{Type: protocol.EvTyping, User: s.username, Room: room})
}

func (s *Session) typingExpired(room string, gen uint64) {
	s.mu.Lock()
	stale := gen != s.typingGen || s.state != StateInRoom || s.room != room
	if !stale {
		s.typingTimer = nil
	}
	s.mu.Unlock()
	if stale {
		return
	}
	s.sender.Send(protocol.Event{Type: protocol.EvStopTyping, Room: room})
}

// cancelTypingLocked stops any pending stop-typing timer and
// invalidates one that may already be mid-fire. Callers hold s.mu.
func (s *Session) cancelTypingLocked() {
	s.typingGen++
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
}

// HandleEvent applies one inbound event. Room-scoped events tagged with
// a room other than the current one are discarded; late events from a
// previous room must not corrupt the current session.
func (s *Session) HandleEvent(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case protocol.EvHistory:
		if ev.Room != s.room || s.state == StateDirectory {
			return
		}
		// Wholesale replacement: history is the authoritative backlog
		// for the room just joined.
		s.messages = append([]protocol.ChatMessage(nil), ev.Messages...)
		s.state = StateInRoom

	case protocol.EvChat:
		if ev.Room != s.room || s.state == StateDirectory {
			return
		}
		s.messages = append(s.messages, protocol.ChatMessage{
			User:      ev.User,
			Text:      ev.Text,
			Timestamp: ev.Timestamp,
		})
		// A delivered message is evidence its sender stopped typing.
		s.typingUser = ""

	case protocol.EvTyping:
		if ev.Room != s.room || s.state == StateDirectory {
			return
		}
		if ev.User != s.username {
			s.typingUser = ev.User
		}

	case protocol.EvStopTyping:
		if ev.Room != "" && ev.Room != s.room {
			return
		}
		s.typingUser = ""

	case protocol.EvRooms:
		s.rooms = append([]protocol.Room(nil), ev.Rooms...)

	case protocol.EvPresence:
		if ev.Room != s.room {
			return
		}
		// Direct assignment only; the count is never computed locally.
		s.onlineCount = ev.Count
	}
}

// ReplaceRooms installs a directory snapshot, e.g. the initial HTTP
// fetch. Pushed rooms events go through HandleEvent and overwrite it.
func (s *Session) ReplaceRooms(rooms []protocol.Room) {
	s.mu.Lock()
	s.rooms = append([]protocol.Room(nil), rooms...)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Username:    s.username,
		State:       s.state,
		Room:        s.room,
		Messages:    append([]protocol.ChatMessage(nil), s.messages...),
		Rooms:       append([]protocol.Room(nil), s.rooms...),
		TypingUser:  s.typingUser,
		OnlineCount: s.onlineCount,
	}
}
