// Package area exposes the team topic channels the hub attaches to. Areas are
// created by team administration; this service only reads them and maintains
// their external-group binding reference.
package area

import "time"

// Role grades a member's authority within an area.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
)

// Area is a topic channel owned by a team.
type Area struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership records a user's role inside an area.
type Membership struct {
	AreaID   string    `json:"area_id"`
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
