package message

import "errors"

var (
	// ErrNotFound indicates the message does not exist in the area.
	ErrNotFound = errors.New("message not found")
	// ErrNotAuthor indicates an edit attempt by someone other than the author.
	ErrNotAuthor = errors.New("only the author may edit a message")
	// ErrDeleted indicates an operation on a soft-deleted message.
	ErrDeleted = errors.New("message is deleted")
)
