package domain

import "time"

// Role is the single global role a user account carries.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// UserStatus defines the possible statuses of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
	UserStatusInactive  UserStatus = "INACTIVE"
)

// AuthKind tags which credential protocol produced an identity. Some policy
// checks apply only to session-based callers.
type AuthKind string

const (
	AuthKindSession AuthKind = "session"
	AuthKindAPIKey  AuthKind = "api_key"
)

// User is the slice of the platform's user record the auth core needs to
// snapshot into sessions and to resolve API-key owners. The full user store
// is an external collaborator.
type User struct {
	ID          string     `bson:"_id" json:"id"`
	Email       string     `bson:"email" json:"email"`
	DisplayName string     `bson:"display_name" json:"display_name"`
	Role        Role       `bson:"role" json:"role"`
	Status      UserStatus `bson:"status" json:"status"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
}

// Identity is the normalized caller identity attached to a request after
// resolution. It is request-scoped and never persisted.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	Role        Role
	Status      UserStatus
	AuthKind    AuthKind

	// SessionID is set only for session-based identities, so handlers like
	// "revoke all other sessions" can spare the calling session.
	SessionID string

	// Scopes is set only for API-key identities.
	Scopes []string

	// TeamID and TeamRole are set when the call carries a team selector and
	// membership resolved successfully.
	TeamID   string
	TeamRole TeamRole
}
