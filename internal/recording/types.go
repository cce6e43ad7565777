package recording

import (
	"errors"
	"time"

	"github.com/teamlinkhq/teamlink/internal/message"
)

var (
	// ErrNotRecording indicates stop was called with no active session.
	ErrNotRecording = errors.New("area is not being recorded")
)

// Session is one recording of an area's timeline. The start and end
// cursors pin the captured window: strictly after Start, up to and
// including End.
type Session struct {
	ID        string         `json:"id"`
	AreaID    string         `json:"area_id"`
	StartedBy string         `json:"started_by"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt *time.Time     `json:"stopped_at,omitempty"`
	Start     message.Cursor `json:"start"`
	End       message.Cursor `json:"end"`
}

// Active reports whether the session is still capturing.
func (s Session) Active() bool {
	return s.StoppedAt == nil
}

// StartResult reports the outcome of a start request. AlreadyActive is
// true when another recording was running, in which case Session is that
// running session.
type StartResult struct {
	Session       Session
	AlreadyActive bool
}

// StopResult carries the closed session, its captured window and, when
// the summarizer is reachable, a digest of the conversation.
type StopResult struct {
	Session  Session           `json:"session"`
	Messages []message.Message `json:"messages"`
	Summary  string            `json:"summary,omitempty"`
}
