package hub

import (
	"testing"
	"time"

	"github.com/teamlinkhq/teamlink/internal/message"
)

func recvEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBroadcastReachesAllAreaSessions(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	a := h.Join("area-1", "sess-a", "user-a")
	b := h.Join("area-1", "sess-b", "user-b")

	msg := &message.Message{ID: "msg-1", AreaID: "area-1", Body: "hello"}
	h.Broadcast("area-1", Event{Type: EventMessageCreated, AreaID: "area-1", Message: msg})

	for _, s := range []*Session{a, b} {
		ev := recvEvent(t, s)
		if ev.Type != EventMessageCreated {
			t.Errorf("type = %q, want %q", ev.Type, EventMessageCreated)
		}
		if ev.Message == nil || ev.Message.ID != "msg-1" {
			t.Errorf("unexpected message payload: %+v", ev.Message)
		}
	}
}

func TestBroadcastDoesNotCrossAreas(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	a := h.Join("area-1", "sess-a", "user-a")
	b := h.Join("area-2", "sess-b", "user-b")

	h.Broadcast("area-1", Event{Type: EventMessageCreated, AreaID: "area-1"})

	recvEvent(t, a)
	select {
	case ev := <-b.Events():
		t.Fatalf("session in other area received event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	first := h.Join("area-1", "sess-a", "user-a")
	second := h.Join("area-1", "sess-a", "user-a")
	if first != second {
		t.Fatal("second join created a new session")
	}
	if got := h.SessionCount("area-1"); got != 1 {
		t.Fatalf("session count = %d, want 1", got)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	s := h.Join("area-1", "sess-a", "user-a")
	h.Leave("area-1", "sess-a")
	h.Leave("area-1", "sess-a")
	h.Leave("area-9", "sess-x")

	if _, ok := <-s.Events(); ok {
		t.Fatal("expected closed event channel after leave")
	}
	if got := h.SessionCount("area-1"); got != 0 {
		t.Fatalf("session count = %d, want 0", got)
	}
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	slow := h.Join("area-1", "sess-slow", "user-a")
	for i := 0; i < sessionBuffer+1; i++ {
		h.Broadcast("area-1", Event{Type: EventMessageCreated, AreaID: "area-1"})
	}

	if got := h.SessionCount("area-1"); got != 0 {
		t.Fatalf("session count = %d, want 0 after eviction", got)
	}
	// Drain the backlog; the channel must end closed.
	for range slow.Events() {
	}
}

func TestTypingBroadcastAndExpiry(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, 50*time.Millisecond)

	watcher := h.Join("area-1", "sess-w", "user-w")
	h.NotifyTyping("area-1", "user-a", true)

	ev := recvEvent(t, watcher)
	if ev.Type != EventTypingChanged || ev.Typing == nil {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.Typing.Active || ev.Typing.UserID != "user-a" {
		t.Fatalf("unexpected typing state: %+v", ev.Typing)
	}
	if users := h.TypingUsers("area-1"); len(users) != 1 || users[0] != "user-a" {
		t.Fatalf("typing users = %v, want [user-a]", users)
	}

	// The indicator must expire on its own.
	ev = recvEvent(t, watcher)
	if ev.Type != EventTypingChanged || ev.Typing == nil || ev.Typing.Active {
		t.Fatalf("expected expiry event, got %+v", ev)
	}
	if users := h.TypingUsers("area-1"); len(users) != 0 {
		t.Fatalf("typing users = %v, want none", users)
	}
}

func TestTypingRefreshDoesNotRebroadcastStart(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	watcher := h.Join("area-1", "sess-w", "user-w")
	h.NotifyTyping("area-1", "user-a", true)
	recvEvent(t, watcher)

	h.NotifyTyping("area-1", "user-a", true)
	select {
	case ev := <-watcher.Events():
		t.Fatalf("refresh produced event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingStaleExpiryAfterRefreshIsIgnored(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	watcher := h.Join("area-1", "sess-w", "user-w")
	h.NotifyTyping("area-1", "user-a", true)
	recvEvent(t, watcher)

	// A timer fire can be queued behind the hub lock while a refresh lands
	// first. The late fire must not clear the refreshed indicator.
	h.NotifyTyping("area-1", "user-a", true)
	h.expireTyping("area-1", "user-a")

	if users := h.TypingUsers("area-1"); len(users) != 1 || users[0] != "user-a" {
		t.Fatalf("typing users = %v, want [user-a]", users)
	}
	select {
	case ev := <-watcher.Events():
		t.Fatalf("stale expiry produced event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingRefreshUnderExpiryChurn(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, 50*time.Millisecond)

	watcher := h.Join("area-1", "sess-w", "user-w")
	h.NotifyTyping("area-1", "user-a", true)
	ev := recvEvent(t, watcher)
	if ev.Typing == nil || !ev.Typing.Active {
		t.Fatalf("expected start event, got %+v", ev)
	}

	// Refresh well inside the lifetime. The indicator must survive the
	// whole window without a stop event.
	stop := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(stop) {
		h.NotifyTyping("area-1", "user-a", true)
		time.Sleep(time.Millisecond)
	}
	h.NotifyTyping("area-1", "user-a", false)

	ev = recvEvent(t, watcher)
	if ev.Typing == nil || ev.Typing.Active {
		t.Fatalf("expected the explicit stop, got %+v", ev)
	}
	select {
	case ev := <-watcher.Events():
		t.Fatalf("unexpected event after stop %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingExplicitStop(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	watcher := h.Join("area-1", "sess-w", "user-w")
	h.NotifyTyping("area-1", "user-a", true)
	recvEvent(t, watcher)

	h.NotifyTyping("area-1", "user-a", false)
	ev := recvEvent(t, watcher)
	if ev.Typing == nil || ev.Typing.Active {
		t.Fatalf("expected stop event, got %+v", ev)
	}

	// Stopping an indicator that is not set stays quiet.
	h.NotifyTyping("area-1", "user-b", false)
	select {
	case ev := <-watcher.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLeaveClearsTypingForLastSession(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	h.Join("area-1", "sess-a", "user-a")
	watcher := h.Join("area-1", "sess-w", "user-w")
	h.NotifyTyping("area-1", "user-a", true)
	recvEvent(t, watcher)

	h.Leave("area-1", "sess-a")
	ev := recvEvent(t, watcher)
	if ev.Type != EventTypingChanged || ev.Typing == nil || ev.Typing.Active {
		t.Fatalf("expected typing cleared on leave, got %+v", ev)
	}
}

func TestEventOrderPreservedPerSession(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, time.Minute)

	s := h.Join("area-1", "sess-a", "user-a")
	ids := []string{"m1", "m2", "m3", "m4"}
	for _, id := range ids {
		h.Broadcast("area-1", Event{
			Type:    EventMessageCreated,
			AreaID:  "area-1",
			Message: &message.Message{ID: id},
		})
	}
	for _, want := range ids {
		ev := recvEvent(t, s)
		if ev.Message == nil || ev.Message.ID != want {
			t.Fatalf("got %+v, want message %s", ev.Message, want)
		}
	}
}
