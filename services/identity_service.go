package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/domain"
)

// Credentials is everything credential-shaped a transport layer pulled out
// of one request. Fields are raw strings; the resolver decides which
// protocol they select and whether they authenticate anyone.
type Credentials struct {
	SessionID string

	APIKeyPublic    string
	APIKeySecret    string
	APIKeyTimestamp string
	APIKeySignature string
	// APIKeyPayload is the raw request body the signature covers, empty for
	// simple-mode calls.
	APIKeyPayload []byte

	CallerIP string
}

// IdentityResolver turns request credentials into a normalized caller
// identity. API-key headers take precedence over a session token when a
// request carries both.
type IdentityResolver struct {
	sessions *SessionService
	apiKeys  *APIKeyService
	users    domain.UserRepository
}

func NewIdentityResolver(sessions *SessionService, apiKeys *APIKeyService, users domain.UserRepository) *IdentityResolver {
	return &IdentityResolver{sessions: sessions, apiKeys: apiKeys, users: users}
}

// Resolve authenticates the request's credentials and returns the caller's
// identity. It fails with ErrUnauthenticated when no credential validates,
// ErrStepUpRequired when a session still owes a second factor, and
// ErrForbidden when the account behind a valid credential cannot act.
func (r *IdentityResolver) Resolve(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	switch {
	case creds.APIKeyPublic != "":
		return r.resolveAPIKey(ctx, creds)
	case creds.SessionID != "":
		return r.resolveSession(ctx, creds.SessionID)
	default:
		return nil, domain.ErrUnauthenticated
	}
}

func (r *IdentityResolver) resolveSession(ctx context.Context, sessionID string) (*domain.Identity, error) {
	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.TwoFactorPending {
		return nil, domain.ErrStepUpRequired
	}
	if session.Status != domain.UserStatusActive {
		return nil, domain.ErrForbidden
	}

	if err := r.sessions.Touch(ctx, session); err != nil {
		log.Warn().Err(err).Str("sessionID", sessionID).Msg("Failed to touch session")
	}

	return &domain.Identity{
		UserID:      session.UserID,
		Email:       session.Email,
		DisplayName: session.DisplayName,
		Role:        session.Role,
		Status:      session.Status,
		AuthKind:    domain.AuthKindSession,
		SessionID:   session.ID,
	}, nil
}

func (r *IdentityResolver) resolveAPIKey(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	var key *domain.APIKey
	var err error
	if creds.APIKeySignature != "" {
		key, err = r.apiKeys.VerifySigned(ctx, creds.APIKeyPublic, creds.APIKeyTimestamp, creds.APIKeyPayload, creds.APIKeySignature, creds.CallerIP)
	} else {
		key, err = r.apiKeys.VerifySimple(ctx, creds.APIKeyPublic, creds.APIKeySecret, creds.CallerIP)
	}
	if err != nil {
		return nil, err
	}

	owner, err := r.users.GetUserByID(ctx, key.OwnerUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// A key without an owner never authenticates, however valid its
			// secret is.
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load key owner: %w", err)
	}
	if owner.Status != domain.UserStatusActive {
		return nil, domain.ErrForbidden
	}

	return &domain.Identity{
		UserID:      owner.ID,
		Email:       owner.Email,
		DisplayName: owner.DisplayName,
		Role:        owner.Role,
		Status:      owner.Status,
		AuthKind:    domain.AuthKindAPIKey,
		Scopes:      key.Scopes,
	}, nil
}
