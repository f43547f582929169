package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zenwell/roomchat/internal/protocol"
	"github.com/zenwell/roomchat/internal/testutil"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, err := New(testutil.NewMemoryStore(), 50)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	return h
}

func createRoom(t *testing.T, h *Hub, name string) protocol.Room {
	t.Helper()
	room, err := h.CreateRoom(name)
	if err != nil {
		t.Fatalf("create room %q: %v", name, err)
	}
	return room
}

func TestConnectSendsDirectory(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	createRoom(t, h, "calm")

	m := testutil.NewMemberSink("alice")
	h.Connect(m)

	roomEvents := m.ByType(protocol.EvRooms)
	if len(roomEvents) != 1 {
		t.Fatalf("expected 1 rooms event on connect, got %d", len(roomEvents))
	}
	if len(roomEvents[0].Rooms) != 1 || roomEvents[0].Rooms[0].Name != "calm" {
		t.Errorf("unexpected directory: %+v", roomEvents[0].Rooms)
	}
}

func TestCreateRoomBroadcastsDirectoryToAll(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)

	alice := testutil.NewMemberSink("alice")
	bob := testutil.NewMemberSink("bob")
	h.Connect(alice)
	h.Connect(bob)

	room := createRoom(t, h, "focus")

	for _, m := range []*testutil.MemberSink{alice, bob} {
		events := m.ByType(protocol.EvRooms)
		// One on connect, one for the create.
		if len(events) != 2 {
			t.Fatalf("%s: expected 2 rooms events, got %d", m.Name, len(events))
		}
		last := events[len(events)-1]
		if len(last.Rooms) != 1 || last.Rooms[0].ID != room.ID {
			t.Errorf("%s: unexpected pushed directory: %+v", m.Name, last.Rooms)
		}
	}
}

func TestJoinSendsHistoryAndPresence(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	h.Connect(alice)
	h.Join(alice, room.ID)

	hist := alice.ByType(protocol.EvHistory)
	if len(hist) != 1 || hist[0].Room != room.ID {
		t.Fatalf("expected history for %s, got %+v", room.ID, hist)
	}

	pres := alice.ByType(protocol.EvPresence)
	if len(pres) != 1 || pres[0].Room != room.ID || pres[0].Count != 1 {
		t.Errorf("expected presence count 1, got %+v", pres)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)

	alice := testutil.NewMemberSink("alice")
	h.Connect(alice)
	h.Join(alice, "nope")

	if errs := alice.ByType(protocol.EvError); len(errs) != 1 {
		t.Errorf("expected error for unknown room, got %+v", errs)
	}
	if hist := alice.ByType(protocol.EvHistory); len(hist) != 0 {
		t.Errorf("expected no history for unknown room, got %d", len(hist))
	}
}

func TestChatBroadcastAndPersist(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	bob := testutil.NewMemberSink("bob")
	h.Connect(alice)
	h.Connect(bob)
	h.Join(alice, room.ID)
	h.Join(bob, room.ID)

	h.Chat(alice, room.ID, "hello")

	// Both members get the broadcast, the sender included.
	for _, m := range []*testutil.MemberSink{alice, bob} {
		chats := m.ByType(protocol.EvChat)
		if len(chats) != 1 {
			t.Fatalf("%s: expected 1 chat event, got %d", m.Name, len(chats))
		}
		if chats[0].User != "alice" || chats[0].Text != "hello" || chats[0].Timestamp == 0 {
			t.Errorf("%s: unexpected chat event: %+v", m.Name, chats[0])
		}
	}

	// A later joiner receives it as history.
	carol := testutil.NewMemberSink("carol")
	h.Connect(carol)
	h.Join(carol, room.ID)
	hist := carol.ByType(protocol.EvHistory)
	if len(hist) != 1 || len(hist[0].Messages) != 1 || hist[0].Messages[0].Text != "hello" {
		t.Errorf("expected persisted message in history, got %+v", hist)
	}
}

func TestChatRequiresMembership(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	h.Connect(alice)

	h.Chat(alice, room.ID, "hi")

	if errs := alice.ByType(protocol.EvError); len(errs) != 1 {
		t.Errorf("expected error for chat without join, got %+v", errs)
	}
}

func TestChatBlankTextRejected(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	h.Connect(alice)
	h.Join(alice, room.ID)

	h.Chat(alice, room.ID, "   ")

	if errs := alice.ByType(protocol.EvError); len(errs) != 1 {
		t.Errorf("expected error for blank text, got %+v", errs)
	}
	if chats := alice.ByType(protocol.EvChat); len(chats) != 0 {
		t.Errorf("expected no broadcast for blank text, got %d", len(chats))
	}
}

func TestTypingRelayExcludesSender(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	bob := testutil.NewMemberSink("bob")
	h.Connect(alice)
	h.Connect(bob)
	h.Join(alice, room.ID)
	h.Join(bob, room.ID)

	h.Typing(alice, room.ID)
	h.StopTyping(alice, room.ID)

	if typing := bob.ByType(protocol.EvTyping); len(typing) != 1 || typing[0].User != "alice" {
		t.Errorf("bob: expected relayed typing from alice, got %+v", typing)
	}
	if stops := bob.ByType(protocol.EvStopTyping); len(stops) != 1 {
		t.Errorf("bob: expected relayed stop typing, got %d", len(stops))
	}
	if typing := alice.ByType(protocol.EvTyping); len(typing) != 0 {
		t.Errorf("alice: typing echoed back to sender: %+v", typing)
	}
}

func TestSwitchingRoomsUpdatesPresence(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	roomX := createRoom(t, h, "x")
	roomY := createRoom(t, h, "y")

	alice := testutil.NewMemberSink("alice")
	bob := testutil.NewMemberSink("bob")
	h.Connect(alice)
	h.Connect(bob)
	h.Join(alice, roomX.ID)
	h.Join(bob, roomX.ID)

	if got := h.Count(roomX.ID); got != 2 {
		t.Fatalf("expected 2 in x, got %d", got)
	}

	h.Join(bob, roomY.ID)

	if got := h.Count(roomX.ID); got != 1 {
		t.Errorf("expected 1 left in x, got %d", got)
	}
	if got := h.Count(roomY.ID); got != 1 {
		t.Errorf("expected 1 in y, got %d", got)
	}

	// Alice hears that x shrank back to 1.
	pres := alice.ByType(protocol.EvPresence)
	last := pres[len(pres)-1]
	if last.Room != roomX.ID || last.Count != 1 {
		t.Errorf("expected presence {%s 1}, got %+v", roomX.ID, last)
	}
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	bob := testutil.NewMemberSink("bob")
	h.Connect(alice)
	h.Connect(bob)
	h.Join(alice, room.ID)
	h.Join(bob, room.ID)

	h.Disconnect(bob)

	if got := h.Count(room.ID); got != 1 {
		t.Errorf("expected 1 after disconnect, got %d", got)
	}
	pres := alice.ByType(protocol.EvPresence)
	last := pres[len(pres)-1]
	if last.Count != 1 {
		t.Errorf("expected presence count 1 after disconnect, got %+v", last)
	}
}

// gatedHistoryStore blocks the next History read after arm, letting a
// test hold a join open while other members keep talking.
type gatedHistoryStore struct {
	*testutil.MemoryStore
	entered chan struct{}
	release chan struct{}
	armed   atomic.Bool
}

func (s *gatedHistoryStore) History(roomID string, limit int) ([]protocol.ChatMessage, error) {
	if s.armed.CompareAndSwap(true, false) {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.MemoryStore.History(roomID, limit)
}

func TestJoinHistoryPrecedesConcurrentChat(t *testing.T) {
	t.Parallel()
	store := &gatedHistoryStore{
		MemoryStore: testutil.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	h, err := New(store, 50)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	room := createRoom(t, h, "calm")

	alice := testutil.NewMemberSink("alice")
	bob := testutil.NewMemberSink("bob")
	h.Connect(alice)
	h.Connect(bob)
	h.Join(alice, room.ID)

	// Hold bob's join open in the middle of its history read while
	// alice chats at the room.
	store.armed.Store(true)
	joined := make(chan struct{})
	go func() {
		h.Join(bob, room.ID)
		close(joined)
	}()
	<-store.entered

	chatted := make(chan struct{})
	go func() {
		h.Chat(alice, room.ID, "hello")
		close(chatted)
	}()
	time.Sleep(50 * time.Millisecond)

	close(store.release)
	<-joined
	<-chatted

	// Bob must see the message exactly once, and never before his
	// history snapshot.
	events := bob.Events()
	histAt, chatAt, chats := -1, -1, 0
	for i, ev := range events {
		switch ev.Type {
		case protocol.EvHistory:
			if histAt == -1 {
				histAt = i
			}
			for _, msg := range ev.Messages {
				if msg.Text == "hello" {
					chats++
				}
			}
		case protocol.EvChat:
			if chatAt == -1 {
				chatAt = i
			}
			if ev.Text == "hello" {
				chats++
			}
		}
	}
	if histAt == -1 {
		t.Fatalf("bob never received history: %+v", events)
	}
	if chatAt != -1 && chatAt < histAt {
		t.Errorf("chat delivered before history (chat at %d, history at %d)", chatAt, histAt)
	}
	if chats != 1 {
		t.Errorf("expected message delivered exactly once, got %d: %+v", chats, events)
	}
}

func TestConcurrentCreatesKeepDirectoryOrdered(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)

	alice := testutil.NewMemberSink("alice")
	h.Connect(alice)

	var wg sync.WaitGroup
	for _, name := range []string{"calm", "focus"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := h.CreateRoom(name); err != nil {
				t.Errorf("create room %q: %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	// Each pushed snapshot must extend the previous one; a shrinking
	// directory would wind the client's wholesale replace backwards.
	events := alice.ByType(protocol.EvRooms)
	for i := 1; i < len(events); i++ {
		if len(events[i].Rooms) < len(events[i-1].Rooms) {
			t.Errorf("directory shrank between pushes: %d then %d rooms",
				len(events[i-1].Rooms), len(events[i].Rooms))
		}
	}
	last := events[len(events)-1]
	if len(last.Rooms) != 2 {
		t.Errorf("expected final directory of 2 rooms, got %+v", last.Rooms)
	}
}

func TestDuplicateRoomNamesAllowed(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)

	a := createRoom(t, h, "calm")
	b := createRoom(t, h, "calm")

	if a.ID == b.ID {
		t.Error("expected distinct ids for same-name rooms")
	}
	if len(h.Rooms()) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(h.Rooms()))
	}
}
