// Package directory is the HTTP client for the room directory service.
// The list it returns is only a bootstrap snapshot; the authoritative
// directory is the stream of rooms events pushed over the realtime
// channel, including the confirmation of this client's own creations.
package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zenwell/roomchat/internal/protocol"
)

const defaultTimeout = 10 * time.Second

// Client talks to the room directory over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a directory client for the given base URL, e.g.
// "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// ListRooms fetches the current room directory. Callers should treat an
// error as an empty directory; the pushed rooms event will repopulate it.
func (c *Client) ListRooms() ([]protocol.Room, error) {
	resp, err := c.http.Get(c.baseURL + "/rooms")
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: unexpected status %d", resp.StatusCode)
	}

	var rooms []protocol.Room
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("list rooms: decode: %w", err)
	}
	return rooms, nil
}

// CreateRoom asks the directory to create a room. An empty or
// whitespace-only name issues no request. The response body is ignored:
// the new room reaches this client through the pushed rooms event, the
// same as every other client.
func (c *Client) CreateRoom(name string) error {
	if strings.TrimSpace(name) == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("create room: encode: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/rooms", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create room: unexpected status %d", resp.StatusCode)
	}
	return nil
}
