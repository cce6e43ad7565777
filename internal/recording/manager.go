package recording

import (
	"context"
	"log/slog"
	"time"

	"github.com/teamlinkhq/teamlink/internal/message"
)

// CursorSource reads timeline positions and windows from the message store.
type CursorSource interface {
	LatestCursor(ctx context.Context, areaID string) (message.Cursor, error)
	ListWindow(ctx context.Context, areaID string, start, end message.Cursor) ([]message.Message, error)
}

// Manager drives the recording state machine for areas. At most one
// session records an area at a time; starting while one runs reports the
// running session instead of erroring.
type Manager struct {
	sessions   SessionStore
	cursors    CursorSource
	summarizer Summarizer
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(log *slog.Logger, sessions SessionStore, cursors CursorSource, summarizer Summarizer) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions:   sessions,
		cursors:    cursors,
		summarizer: summarizer,
		logger:     log.With(slog.String("service", "recording")),
		now:        time.Now,
	}
}

// Start opens a recording pinned to the area's current timeline position.
// Messages already present are outside the window; everything ingested
// afterwards is inside it.
func (m *Manager) Start(ctx context.Context, areaID, userID string) (StartResult, error) {
	start, err := m.cursors.LatestCursor(ctx, areaID)
	if err != nil {
		return StartResult{}, err
	}
	sess, inserted, err := m.sessions.InsertActive(ctx, areaID, userID, start)
	if err != nil {
		return StartResult{}, err
	}
	if inserted {
		m.logger.Info("recording started",
			"area_id", areaID, "session_id", sess.ID)
	}
	return StartResult{Session: sess, AlreadyActive: !inserted}, nil
}

// Stop closes the active recording, collects the captured window and asks
// the summarizer for a digest. Summarization is best-effort: a failure
// leaves the summary empty but the recording still closes.
func (m *Manager) Stop(ctx context.Context, areaID string) (StopResult, error) {
	active, err := m.sessions.Active(ctx, areaID)
	if err != nil {
		return StopResult{}, err
	}
	end, err := m.cursors.LatestCursor(ctx, areaID)
	if err != nil {
		return StopResult{}, err
	}
	closed, err := m.sessions.Close(ctx, active.ID, m.now(), end)
	if err != nil {
		return StopResult{}, err
	}

	msgs, err := m.cursors.ListWindow(ctx, areaID, closed.Start, closed.End)
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{Session: closed, Messages: msgs}

	if m.summarizer != nil && len(msgs) > 0 {
		summary, err := m.summarizer.Summarize(ctx, areaID, msgs)
		if err != nil {
			m.logger.Error("summarization failed",
				"area_id", areaID, "session_id", closed.ID, "error", err)
		} else {
			result.Summary = summary
		}
	}
	m.logger.Info("recording stopped",
		"area_id", areaID, "session_id", closed.ID, "messages", len(msgs))
	return result, nil
}

// Status returns the running session for an area, or ErrNotRecording.
func (m *Manager) Status(ctx context.Context, areaID string) (Session, error) {
	return m.sessions.Active(ctx, areaID)
}
