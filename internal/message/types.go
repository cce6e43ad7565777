// Package message is the persistence boundary for the area timeline. Every
// component treats it as the linearization point for whether a message
// happened.
package message

import "time"

// Origin marks which ingestion path a message arrived through.
type Origin string

const (
	// OriginDirect is a message submitted by an authenticated area member.
	OriginDirect Origin = "direct"
	// OriginRelayed is a message relayed from the external group-chat platform.
	OriginRelayed Origin = "relayed"
)

// ExternalAuthor describes a platform-side sender for relayed messages.
type ExternalAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Message is one entry in an area timeline.
type Message struct {
	ID             string          `json:"id"`
	AreaID         string          `json:"area_id"`
	AuthorID       string          `json:"author_id,omitempty"`
	ExternalAuthor *ExternalAuthor `json:"external_author,omitempty"`
	Origin         Origin          `json:"origin"`
	Body           string          `json:"body"`
	AttachmentID   string          `json:"attachment_id,omitempty"`
	ReplyToID      string          `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// Deleted reports whether the message was soft-deleted.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// AppendInput carries one timeline write. CreatedAt is assigned by the
// ingestion coordinator, never by the caller or the external platform.
type AppendInput struct {
	AreaID         string
	AuthorID       string
	ExternalAuthor *ExternalAuthor
	Origin         Origin
	Body           string
	AttachmentID   string
	ReplyToID      string
	CreatedAt      time.Time
}

// Cursor is a position in an area timeline: the (created_at, id) pair of the
// newest message at the time it was taken. The zero Cursor points before the
// first message.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	MessageID string    `json:"message_id,omitempty"`
}

// IsZero reports whether the cursor points before the first message.
func (c Cursor) IsZero() bool {
	return c.MessageID == "" && c.CreatedAt.IsZero()
}

// Before reports whether c is strictly earlier than other in timeline order.
func (c Cursor) Before(other Cursor) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.MessageID < other.MessageID
	}
	return c.CreatedAt.Before(other.CreatedAt)
}
