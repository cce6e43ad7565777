package hub

import "github.com/teamlinkhq/teamlink/internal/message"

// EventType identifies a live event pushed to area subscribers.
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessageEdited  EventType = "message.edited"
	EventMessageDeleted EventType = "message.deleted"
	EventTypingChanged  EventType = "typing.changed"
)

// TypingState describes a single participant's typing indicator.
type TypingState struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}

// Event is the wire payload delivered over a live subscription. Exactly one
// of Message and Typing is set depending on Type.
type Event struct {
	Type    EventType        `json:"type"`
	AreaID  string           `json:"area_id"`
	Message *message.Message `json:"message,omitempty"`
	Typing  *TypingState     `json:"typing,omitempty"`
}
