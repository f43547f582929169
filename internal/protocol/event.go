package protocol

import "encoding/json"

// Event types.
const (
	// Client to server.
	EvJoin       = "join"
	EvChat       = "chat"
	EvTyping     = "typing"
	EvStopTyping = "stop_typing"

	// Server to client. EvChat, EvTyping and EvStopTyping flow this
	// direction too.
	EvHistory  = "history"
	EvRooms    = "rooms"
	EvPresence = "presence"
	EvError    = "error"
)

// Event is the wire envelope carried on the realtime channel. One JSON
// object per frame; which fields are meaningful depends on Type.
type Event struct {
	Type      string        `json:"type"`
	Room      string        `json:"room,omitempty"`
	User      string        `json:"user,omitempty"`
	Text      string        `json:"text,omitempty"`
	Timestamp int64         `json:"timestamp,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	Rooms     []Room        `json:"rooms,omitempty"`
	Count     int           `json:"count,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// ChatMessage is a single room message. User is empty for system
// messages; Timestamp is epoch milliseconds, zero meaning "now" at
// render time.
type ChatMessage struct {
	User      string `json:"user,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Encode serializes a value to JSON bytes.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeEvent deserializes JSON bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	return ev, err
}
