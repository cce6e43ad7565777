package bridge

import (
	"context"
	"errors"
)

var (
	ErrCodeInvalid = errors.New("linking code is invalid")
	ErrCodeExpired = errors.New("linking code has expired")
	ErrSendFailed  = errors.New("failed to deliver message to platform")
)

// GroupInfo describes an external chat group as the platform reports it.
type GroupInfo struct {
	ID    string
	Title string
}

// OutboundMessage is a timeline message queued for delivery into an
// external group.
type OutboundMessage struct {
	GroupID    string
	AuthorName string
	Body       string
}

// InboundMessage is a message received from an external group via the
// platform webhook.
type InboundMessage struct {
	GroupID    string
	GroupTitle string
	AuthorID   string
	AuthorName string
	Body       string
}

// Client abstracts the external chat platform.
type Client interface {
	// SendMessage posts text into an external group.
	SendMessage(ctx context.Context, groupID, text string) error
	// GroupInfo fetches the current metadata of an external group.
	GroupInfo(ctx context.Context, groupID string) (GroupInfo, error)
}
