package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
)

type identityFixture struct {
	resolver *IdentityResolver
	sessions *SessionService
	apiKeys  *APIKeyService
	keyRepo  *MockAPIKeyRepository
	userRepo *MockUserRepository
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(store.Close)

	keyRepo := new(MockAPIKeyRepository)
	userRepo := new(MockUserRepository)
	sessions := NewSessionService(store)
	apiKeys := NewAPIKeyService(keyRepo, store)
	return &identityFixture{
		resolver: NewIdentityResolver(sessions, apiKeys, userRepo),
		sessions: sessions,
		apiKeys:  apiKeys,
		keyRepo:  keyRepo,
		userRepo: userRepo,
	}
}

func TestIdentityResolver_NoCredentials(t *testing.T) {
	f := newIdentityFixture(t)
	_, err := f.resolver.Resolve(context.Background(), Credentials{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestIdentityResolver_Session(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	t.Run("valid session resolves", func(t *testing.T) {
		session, err := f.sessions.CreateSession(ctx, testUser(), "", "", false)
		require.NoError(t, err)

		identity, err := f.resolver.Resolve(ctx, Credentials{SessionID: session.ID})
		require.NoError(t, err)
		assert.Equal(t, "user-1", identity.UserID)
		assert.Equal(t, domain.AuthKindSession, identity.AuthKind)
		assert.Equal(t, session.ID, identity.SessionID)
		assert.Empty(t, identity.Scopes)
	})

	t.Run("pending session owes a second factor", func(t *testing.T) {
		session, err := f.sessions.CreateSession(ctx, testUser(), "", "", true)
		require.NoError(t, err)

		_, err = f.resolver.Resolve(ctx, Credentials{SessionID: session.ID})
		assert.ErrorIs(t, err, domain.ErrStepUpRequired)
	})

	t.Run("suspended snapshot is forbidden", func(t *testing.T) {
		suspended := testUser()
		suspended.Status = domain.UserStatusSuspended
		session, err := f.sessions.CreateSession(ctx, suspended, "", "", false)
		require.NoError(t, err)

		_, err = f.resolver.Resolve(ctx, Credentials{SessionID: session.ID})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("unknown session id", func(t *testing.T) {
		_, err := f.resolver.Resolve(ctx, Credentials{SessionID: "bogus"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestIdentityResolver_APIKey(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	f.keyRepo.On("CreateAPIKey", mock.Anything, mock.Anything).Return(nil).Once()
	key, secret, err := f.apiKeys.CreateAPIKey(ctx, "user-1", CreateAPIKeyParams{
		Name:   "robot",
		Scopes: []string{"files:read"},
	})
	require.NoError(t, err)
	f.keyRepo.On("GetAPIKeyByPublicKey", mock.Anything, key.PublicKey).Return(key, nil)
	f.keyRepo.On("TouchAPIKeyLastUsed", mock.Anything, key.ID, mock.Anything).Return(nil)

	t.Run("valid key resolves the owner", func(t *testing.T) {
		f.userRepo.On("GetUserByID", mock.Anything, "user-1").Return(testUser(), nil).Once()

		identity, err := f.resolver.Resolve(ctx, Credentials{
			APIKeyPublic: key.PublicKey,
			APIKeySecret: secret,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.AuthKindAPIKey, identity.AuthKind)
		assert.Equal(t, []string{"files:read"}, identity.Scopes)
		assert.Empty(t, identity.SessionID)
	})

	t.Run("api key headers beat a session token", func(t *testing.T) {
		f.userRepo.On("GetUserByID", mock.Anything, "user-1").Return(testUser(), nil).Once()
		session, err := f.sessions.CreateSession(ctx, testUser(), "", "", false)
		require.NoError(t, err)

		identity, err := f.resolver.Resolve(ctx, Credentials{
			SessionID:    session.ID,
			APIKeyPublic: key.PublicKey,
			APIKeySecret: secret,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.AuthKindAPIKey, identity.AuthKind)
	})

	t.Run("suspended owner is forbidden", func(t *testing.T) {
		suspended := testUser()
		suspended.Status = domain.UserStatusSuspended
		f.userRepo.On("GetUserByID", mock.Anything, "user-1").Return(suspended, nil).Once()

		_, err := f.resolver.Resolve(ctx, Credentials{
			APIKeyPublic: key.PublicKey,
			APIKeySecret: secret,
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("orphaned key never authenticates", func(t *testing.T) {
		f.userRepo.On("GetUserByID", mock.Anything, "user-1").Return(nil, domain.ErrNotFound).Once()

		_, err := f.resolver.Resolve(ctx, Credentials{
			APIKeyPublic: key.PublicKey,
			APIKeySecret: secret,
		})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
