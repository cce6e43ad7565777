package attachment

import (
	"errors"
	"time"
)

var (
	// ErrUploadNotFound indicates the upload handle is unknown or finished.
	ErrUploadNotFound = errors.New("upload session not found")
	// ErrNotUploader indicates the caller does not own the upload session.
	ErrNotUploader = errors.New("upload session belongs to another user")
	// ErrTooLarge indicates the declared or received size exceeds the limit.
	ErrTooLarge = errors.New("attachment exceeds the maximum size")
	// ErrSizeExceeded indicates received bytes overran the declared size.
	ErrSizeExceeded = errors.New("upload exceeded its declared size")
	// ErrSizeMismatch indicates a commit before all declared bytes arrived.
	ErrSizeMismatch = errors.New("upload is incomplete")
	// ErrNotFound indicates no committed attachment with that id exists.
	ErrNotFound = errors.New("attachment not found")
)

// Attachment is a committed upload, addressable from messages.
type Attachment struct {
	ID          string    `json:"id"`
	AreaID      string    `json:"area_id"`
	UploaderID  string    `json:"uploader_id"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	ContentHash string    `json:"content_hash"`
	StorageKey  string    `json:"-"`
	Filename    string    `json:"filename,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Progress reports how far an in-flight upload has come.
type Progress struct {
	UploadID      string `json:"upload_id"`
	ReceivedBytes int64  `json:"received_bytes"`
	DeclaredBytes int64  `json:"declared_bytes"`
	Percent       int    `json:"percent"`
}
