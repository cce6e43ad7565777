package hub

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// sessionBuffer is the per-subscriber event backlog. A subscriber that falls
// this far behind is evicted rather than allowed to stall the fan-out.
const sessionBuffer = 64

// Session is one live subscription to an area. Events arrives in ingestion
// order; the channel is closed when the session leaves or is evicted.
type Session struct {
	ID     string
	AreaID string
	UserID string

	events chan Event
	closed bool
}

// Events returns the receive side of the session's event stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// typingEntry is one user's live typing indicator. The deadline is the
// authoritative expiry; the timer only schedules the check. A refresh moves
// the deadline and re-arms the timer, so a timer that already fired before
// the refresh finds the deadline in the future and must not expire the entry.
type typingEntry struct {
	timer    *time.Timer
	deadline time.Time
}

type room struct {
	sessions map[string]*Session
	// typing holds the expiry state per actively-typing user.
	typing map[string]*typingEntry
}

// Hub fans events out to live area subscribers and tracks typing presence.
// All state is in-memory; a restart drops subscriptions and indicators.
type Hub struct {
	mu        sync.Mutex
	rooms     map[string]*room
	typingTTL time.Duration
	logger    *slog.Logger
}

// NewHub creates a hub with the given typing-indicator lifetime.
func NewHub(log *slog.Logger, typingTTL time.Duration) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if typingTTL <= 0 {
		typingTTL = 3 * time.Second
	}
	return &Hub{
		rooms:     make(map[string]*room),
		typingTTL: typingTTL,
		logger:    log.With(slog.String("service", "hub")),
	}
}

// Join subscribes a session to an area. Joining with a session ID that is
// already subscribed returns the existing session unchanged.
func (h *Hub) Join(areaID, sessionID, userID string) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[areaID]
	if r == nil {
		r = &room{
			sessions: make(map[string]*Session),
			typing:   make(map[string]*typingEntry),
		}
		h.rooms[areaID] = r
	}
	if existing, ok := r.sessions[sessionID]; ok {
		return existing
	}
	s := &Session{
		ID:     sessionID,
		AreaID: areaID,
		UserID: userID,
		events: make(chan Event, sessionBuffer),
	}
	r.sessions[sessionID] = s
	h.logger.Debug("session joined", "area_id", areaID, "session_id", sessionID)
	return s
}

// Leave removes a session and closes its event stream. Leaving a session
// that is not subscribed is a no-op. If it was the user's last session in
// the area their typing indicator is cleared.
func (h *Hub) Leave(areaID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(areaID, sessionID)
}

func (h *Hub) leaveLocked(areaID, sessionID string) {
	r := h.rooms[areaID]
	if r == nil {
		return
	}
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	if !s.closed {
		s.closed = true
		close(s.events)
	}

	if !h.userPresentLocked(r, s.UserID) {
		h.stopTypingLocked(areaID, r, s.UserID)
	}
	h.dropRoomIfEmptyLocked(areaID, r)
}

// Broadcast delivers an event to every session subscribed to the area.
// Sessions whose buffer is full are evicted so one slow reader cannot
// back-pressure the ingestion path.
func (h *Hub) Broadcast(areaID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[areaID]
	if r == nil {
		return
	}
	for id, s := range r.sessions {
		select {
		case s.events <- ev:
		default:
			h.logger.Warn("evicting slow subscriber",
				"area_id", areaID, "session_id", id)
			h.leaveLocked(areaID, id)
		}
	}
}

// NotifyTyping records that a user started or stopped typing and broadcasts
// the change. A started indicator expires on its own after the hub's typing
// lifetime unless refreshed.
func (h *Hub) NotifyTyping(areaID, userID string, active bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[areaID]
	if r == nil {
		if !active {
			return
		}
		r = &room{
			sessions: make(map[string]*Session),
			typing:   make(map[string]*typingEntry),
		}
		h.rooms[areaID] = r
	}

	if !active {
		h.stopTypingLocked(areaID, r, userID)
		h.dropRoomIfEmptyLocked(areaID, r)
		return
	}

	if entry, ok := r.typing[userID]; ok {
		entry.deadline = time.Now().Add(h.typingTTL)
		entry.timer.Reset(h.typingTTL)
		return
	}
	r.typing[userID] = &typingEntry{
		deadline: time.Now().Add(h.typingTTL),
		timer: time.AfterFunc(h.typingTTL, func() {
			h.expireTyping(areaID, userID)
		}),
	}
	h.broadcastTypingLocked(areaID, r, userID, true)
}

// TypingUsers returns the users currently marked as typing, sorted for
// stable output.
func (h *Hub) TypingUsers(areaID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[areaID]
	if r == nil || len(r.typing) == 0 {
		return nil
	}
	users := make([]string, 0, len(r.typing))
	for userID := range r.typing {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// SessionCount reports the number of live subscriptions to an area.
func (h *Hub) SessionCount(areaID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r := h.rooms[areaID]; r != nil {
		return len(r.sessions)
	}
	return 0
}

func (h *Hub) expireTyping(areaID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[areaID]
	if r == nil {
		return
	}
	entry, ok := r.typing[userID]
	if !ok {
		return
	}
	// A refresh can land between this timer firing and the lock being
	// acquired. The refresh re-armed the timer, so this fire is stale.
	if time.Now().Before(entry.deadline) {
		return
	}
	delete(r.typing, userID)
	h.broadcastTypingLocked(areaID, r, userID, false)
	h.dropRoomIfEmptyLocked(areaID, r)
}

func (h *Hub) stopTypingLocked(areaID string, r *room, userID string) {
	entry, ok := r.typing[userID]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(r.typing, userID)
	h.broadcastTypingLocked(areaID, r, userID, false)
}

func (h *Hub) broadcastTypingLocked(areaID string, r *room, userID string, active bool) {
	ev := Event{
		Type:   EventTypingChanged,
		AreaID: areaID,
		Typing: &TypingState{UserID: userID, Active: active},
	}
	for id, s := range r.sessions {
		select {
		case s.events <- ev:
		default:
			h.logger.Warn("evicting slow subscriber",
				"area_id", areaID, "session_id", id)
			h.leaveLocked(areaID, id)
		}
	}
}

func (h *Hub) userPresentLocked(r *room, userID string) bool {
	for _, s := range r.sessions {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) dropRoomIfEmptyLocked(areaID string, r *room) {
	if len(r.sessions) == 0 && len(r.typing) == 0 {
		delete(h.rooms, areaID)
	}
}
