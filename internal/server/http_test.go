package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/zenwell/roomchat/internal/protocol"
	"github.com/zenwell/roomchat/internal/testutil"
)

func TestHealth(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	Health()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestListRoomsEmpty(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()

	Rooms(h)(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var rooms []protocol.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("expected empty directory, got %+v", rooms)
	}
}

func TestCreateThenListRooms(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	handler := Rooms(h)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"calm"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created protocol.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal created: %v", err)
	}
	if created.ID == "" || created.Name != "calm" {
		t.Errorf("unexpected created room: %+v", created)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	var rooms []protocol.Room
	if err := json.Unmarshal(rec.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != created.ID {
		t.Errorf("expected created room in listing, got %+v", rooms)
	}
}

func TestCreateRoomBlankName(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	rec := httptest.NewRecorder()

	Rooms(h)(rec, httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"  "}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank name, got %d", rec.Code)
	}
	if len(h.Rooms()) != 0 {
		t.Errorf("blank name created a room: %+v", h.Rooms())
	}
}

func TestCreateRoomInvalidJSON(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	rec := httptest.NewRecorder()

	Rooms(h)(rec, httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rec.Code)
	}
}

func TestCreateRoomRateLimited(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	handler := Rooms(h)

	var last int
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"burst"}`))
		req.RemoteAddr = "10.0.0.1:12345"
		handler(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst, got %d", last)
	}

	// A different IP gets its own limiter.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"other"}`))
	req.RemoteAddr = "10.0.0.2:12345"
	handler(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for fresh IP, got %d", rec.Code)
	}
}

func TestIPLimiterSweepsIdleEntries(t *testing.T) {
	t.Parallel()
	l := newIPLimiter(rate.Limit(1), 1, 20*time.Millisecond, 10*time.Millisecond)
	defer close(l.stop)

	if !l.allow("10.0.0.1:1234") {
		t.Fatal("first request should be allowed")
	}
	if l.allow("10.0.0.1:1234") {
		t.Fatal("burst of 1 should be spent")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		l.mu.Lock()
		n := len(l.limiters)
		l.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("idle entry never swept, %d limiters remain", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The IP comes back with a fresh bucket, not its spent one.
	if !l.allow("10.0.0.1:1234") {
		t.Error("request after sweep should get a fresh limiter")
	}
}

func TestRoomsMethodNotAllowed(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	rec := httptest.NewRecorder()

	Rooms(h)(rec, httptest.NewRequest(http.MethodDelete, "/rooms", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestCreateRoomPushesDirectory(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	m := testutil.NewMemberSink("alice")
	h.Connect(m)

	rec := httptest.NewRecorder()
	Rooms(h)(rec, httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader(`{"name":"calm"}`)))

	events := m.ByType(protocol.EvRooms)
	if len(events) != 2 {
		t.Fatalf("expected directory push after create, got %d rooms events", len(events))
	}
	if len(events[1].Rooms) != 1 || events[1].Rooms[0].Name != "calm" {
		t.Errorf("unexpected pushed directory: %+v", events[1].Rooms)
	}
}
