package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/driftbox/authcore/domain"
)

// --- Mock repositories ---

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetAPIKeyByID(ctx context.Context, id string) (*domain.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetAPIKeyByPublicKey(ctx context.Context, publicKey string) (*domain.APIKey, error) {
	args := m.Called(ctx, publicKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) ListAPIKeysByOwner(ctx context.Context, ownerUserID string) ([]*domain.APIKey, error) {
	args := m.Called(ctx, ownerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) UpdateAPIKey(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockTwoFactorRepository struct {
	mock.Mock
}

func (m *MockTwoFactorRepository) GetEnrollment(ctx context.Context, userID string) (*domain.TwoFactorEnrollment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TwoFactorEnrollment), args.Error(1)
}

func (m *MockTwoFactorRepository) UpsertEnrollment(ctx context.Context, enrollment *domain.TwoFactorEnrollment) error {
	args := m.Called(ctx, enrollment)
	return args.Error(0)
}

func (m *MockTwoFactorRepository) DeleteEnrollment(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type MockPasskeyRepository struct {
	mock.Mock
}

func (m *MockPasskeyRepository) CreateCredential(ctx context.Context, credential *domain.PasskeyCredential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

func (m *MockPasskeyRepository) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	args := m.Called(ctx, credentialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasskeyCredential), args.Error(1)
}

func (m *MockPasskeyRepository) ListCredentialsByUser(ctx context.Context, userID string) ([]*domain.PasskeyCredential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PasskeyCredential), args.Error(1)
}

func (m *MockPasskeyRepository) UpdateCredentialCounter(ctx context.Context, id string, counter uint32, usedAt time.Time) error {
	args := m.Called(ctx, id, counter, usedAt)
	return args.Error(0)
}

func (m *MockPasskeyRepository) DeleteCredential(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

type MockTeamRepository struct {
	mock.Mock
}

func (m *MockTeamRepository) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	args := m.Called(ctx, teamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Team), args.Error(1)
}

func (m *MockTeamRepository) GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMembership, error) {
	args := m.Called(ctx, teamID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TeamMembership), args.Error(1)
}
