package linking

import (
	"errors"
	"time"
)

var (
	// ErrAreaAlreadyLinked means the area is bound to a different group.
	ErrAreaAlreadyLinked = errors.New("area is already linked to another group")
	// ErrGroupAlreadyLinked means the group is bound to a different area.
	ErrGroupAlreadyLinked = errors.New("group is already linked to another area")
	// ErrNotLinked means no binding exists for the area or group.
	ErrNotLinked = errors.New("no link exists")
)

// Binding is a one-to-one association between an area and an external
// chat group.
type Binding struct {
	ID              string    `json:"id"`
	AreaID          string    `json:"area_id"`
	ExternalGroupID string    `json:"external_group_id"`
	BoundBy         string    `json:"bound_by"`
	BoundAt         time.Time `json:"bound_at"`
}

// LinkResult reports the outcome of a link request. AlreadyLinked is true
// when the exact binding already existed, which callers treat as success.
type LinkResult struct {
	Binding       Binding
	AlreadyLinked bool
}
