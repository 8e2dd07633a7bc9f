package domain

import (
	"context"
	"time"
)

// UserRepository reads user records from the platform's user store. The
// auth core only ever reads users; account management is external.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// APIKeyRepository persists API keys. Keys are soft-revoked, never hard
// deleted, so audit trails keep their subject.
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*APIKey, error)
	GetAPIKeyByPublicKey(ctx context.Context, publicKey string) (*APIKey, error)
	ListAPIKeysByOwner(ctx context.Context, ownerUserID string) ([]*APIKey, error)
	UpdateAPIKey(ctx context.Context, key *APIKey) error
	// TouchAPIKeyLastUsed is best-effort bookkeeping; callers may ignore
	// its error.
	TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error
}

// TwoFactorRepository persists 2FA enrollments, one record per user.
type TwoFactorRepository interface {
	GetEnrollment(ctx context.Context, userID string) (*TwoFactorEnrollment, error)
	UpsertEnrollment(ctx context.Context, enrollment *TwoFactorEnrollment) error
	DeleteEnrollment(ctx context.Context, userID string) error
}

// PasskeyRepository persists WebAuthn credentials.
type PasskeyRepository interface {
	CreateCredential(ctx context.Context, credential *PasskeyCredential) error
	GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*PasskeyCredential, error)
	ListCredentialsByUser(ctx context.Context, userID string) ([]*PasskeyCredential, error)
	UpdateCredentialCounter(ctx context.Context, id string, counter uint32, usedAt time.Time) error
	DeleteCredential(ctx context.Context, userID, id string) error
}

// TeamRepository reads teams and memberships from the tenancy store.
type TeamRepository interface {
	GetTeam(ctx context.Context, teamID string) (*Team, error)
	GetMembership(ctx context.Context, teamID, userID string) (*TeamMembership, error)
}
