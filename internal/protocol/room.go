package protocol

// Room is a directory entry. The ID is assigned by the server and
// opaque to clients; Name is display-only and not necessarily unique.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
