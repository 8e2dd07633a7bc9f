package domain

import "time"

// TeamRole is the role a user holds inside one team, independent of the
// global account role.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "OWNER"
	TeamRoleAdmin  TeamRole = "ADMIN"
	TeamRoleMember TeamRole = "MEMBER"
	TeamRoleViewer TeamRole = "VIEWER"
)

// TeamStatus defines the lifecycle states of a team. Only active teams
// accept team-scoped calls, regardless of the caller's role.
type TeamStatus string

const (
	TeamStatusActive    TeamStatus = "ACTIVE"
	TeamStatusSuspended TeamStatus = "SUSPENDED"
	TeamStatusDeleted   TeamStatus = "DELETED"
)

// Team is the slice of the team record the auth core consults. Team
// administration itself lives outside the core.
type Team struct {
	ID        string     `bson:"_id" json:"id"`
	Name      string     `bson:"name" json:"name"`
	Status    TeamStatus `bson:"status" json:"status"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
}

// TeamMembership links a user to a team with a team-scoped role.
type TeamMembership struct {
	TeamID    string    `bson:"team_id" json:"team_id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Role      TeamRole  `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
