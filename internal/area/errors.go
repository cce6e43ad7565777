package area

import "errors"

var (
	// ErrNotFound indicates the requested area does not exist.
	ErrNotFound = errors.New("area not found")
	// ErrNotAMember indicates the caller does not belong to the area.
	ErrNotAMember = errors.New("not a member of this area")
)
