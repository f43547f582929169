package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zenwell/roomchat/internal/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			user TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room_id ON messages(room_id, id);
	`)
	return err
}

// CreateRoom persists a room.
func (s *SQLiteStore) CreateRoom(room protocol.Room) error {
	_, err := s.db.Exec(
		"INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)",
		room.ID, room.Name, time.Now().UTC(),
	)
	return err
}

// Rooms returns all rooms in creation order.
func (s *SQLiteStore) Rooms() ([]protocol.Room, error) {
	rows, err := s.db.Query("SELECT id, name FROM rooms ORDER BY created_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []protocol.Room
	for rows.Next() {
		var r protocol.Room
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// SaveMessage persists a message for a room. A zero timestamp is
// stamped with the current time.
func (s *SQLiteStore) SaveMessage(roomID string, msg protocol.ChatMessage) error {
	ts := msg.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := s.db.Exec(
		"INSERT INTO messages (room_id, user, text, timestamp) VALUES (?, ?, ?, ?)",
		roomID, msg.User, msg.Text, ts,
	)
	return err
}

// History returns the last `limit` messages for a room, oldest first.
func (s *SQLiteStore) History(roomID string, limit int) ([]protocol.ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT user, text, timestamp FROM messages
		WHERE room_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []protocol.ChatMessage
	for rows.Next() {
		var m protocol.ChatMessage
		if err := rows.Scan(&m.User, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to oldest-first order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
