package store

import "github.com/zenwell/roomchat/internal/protocol"

// Store defines the persistence interface for the reference server.
type Store interface {
	// CreateRoom persists a room.
	CreateRoom(room protocol.Room) error
	// Rooms returns all rooms in creation order.
	Rooms() ([]protocol.Room, error)
	// SaveMessage persists a message for a room.
	SaveMessage(roomID string, msg protocol.ChatMessage) error
	// History returns the last `limit` messages for a room, oldest first.
	History(roomID string, limit int) ([]protocol.ChatMessage, error)
	// Close releases any resources held by the store.
	Close() error
}
