package timeline

import (
	"errors"

	"github.com/teamlinkhq/teamlink/internal/message"
)

const (
	// MaxBodyBytes bounds a single message body.
	MaxBodyBytes = 4096
	// DefaultPageSize is the history page size when the caller gives none.
	DefaultPageSize = 50
	// MaxPageSize caps a single history page.
	MaxPageSize = 200
)

var (
	ErrEmptyBody   = errors.New("message body is empty")
	ErrBodyTooLong = errors.New("message body exceeds the size limit")
)

// DirectInput is a message posted by an authenticated hub user.
type DirectInput struct {
	AreaID       string
	AuthorID     string
	AuthorName   string
	Body         string
	AttachmentID string
	ReplyToID    string
}

// RelayedInput is a message arriving from a linked external group.
type RelayedInput struct {
	GroupID        string
	ExternalAuthor message.ExternalAuthor
	Body           string
}
