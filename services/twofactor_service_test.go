package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
)

// stubTwoFactorRepo keeps one enrollment in memory, since most 2FA flows
// read back what the previous step wrote.
type stubTwoFactorRepo struct {
	enrollment *domain.TwoFactorEnrollment
}

func (r *stubTwoFactorRepo) GetEnrollment(_ context.Context, userID string) (*domain.TwoFactorEnrollment, error) {
	if r.enrollment == nil || r.enrollment.UserID != userID {
		return nil, domain.ErrNotFound
	}
	rec := *r.enrollment
	return &rec, nil
}

func (r *stubTwoFactorRepo) UpsertEnrollment(_ context.Context, enrollment *domain.TwoFactorEnrollment) error {
	rec := *enrollment
	r.enrollment = &rec
	return nil
}

func (r *stubTwoFactorRepo) DeleteEnrollment(_ context.Context, userID string) error {
	if r.enrollment == nil || r.enrollment.UserID != userID {
		return domain.ErrNotFound
	}
	r.enrollment = nil
	return nil
}

func newTwoFactorFixture(t *testing.T) (*TwoFactorService, *stubTwoFactorRepo) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(store.Close)
	repo := &stubTwoFactorRepo{}
	return NewTwoFactorService(repo, store, "DriftBox"), repo
}

func liveCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := pqtotp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	return code
}

func TestTwoFactorService_SetupEnableVerify(t *testing.T) {
	svc, repo := newTwoFactorFixture(t)
	ctx := context.Background()
	user := testUser()

	setup, err := svc.Setup(ctx, user)
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	assert.False(t, repo.enrollment.IsEnabled)

	t.Run("not enabled until a live code proves possession", func(t *testing.T) {
		enabled, err := svc.IsEnabled(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("enable rejects a wrong code", func(t *testing.T) {
		_, err := svc.Enable(ctx, user.ID, "000000")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	backupCodes, err := svc.Enable(ctx, user.ID, liveCode(t, setup.Secret))
	require.NoError(t, err)

	t.Run("backup codes come formatted and exactly once", func(t *testing.T) {
		require.Len(t, backupCodes, 10)
		format := regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`)
		for _, code := range backupCodes {
			assert.Regexp(t, format, code)
		}
	})

	t.Run("enabled flag flips after synchronous invalidation", func(t *testing.T) {
		enabled, err := svc.IsEnabled(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("re-setup of an enabled enrollment is rejected", func(t *testing.T) {
		_, err := svc.Setup(ctx, user)
		assert.ErrorIs(t, err, ErrTwoFactorAlreadyEnabled)
	})

	t.Run("live code verifies", func(t *testing.T) {
		assert.NoError(t, svc.Verify(ctx, user.ID, liveCode(t, setup.Secret)))
	})

	t.Run("wrong code fails verify", func(t *testing.T) {
		assert.ErrorIs(t, svc.Verify(ctx, user.ID, "123456"), domain.ErrUnauthenticated)
	})
}

func TestTwoFactorService_BackupCodeSingleUse(t *testing.T) {
	svc, repo := newTwoFactorFixture(t)
	ctx := context.Background()
	user := testUser()

	setup, err := svc.Setup(ctx, user)
	require.NoError(t, err)
	backupCodes, err := svc.Enable(ctx, user.ID, liveCode(t, setup.Secret))
	require.NoError(t, err)

	code := backupCodes[0]
	require.NoError(t, svc.Verify(ctx, user.ID, code))
	assert.Len(t, repo.enrollment.BackupCodes, 9)

	t.Run("consumed code never validates again", func(t *testing.T) {
		assert.ErrorIs(t, svc.Verify(ctx, user.ID, code), domain.ErrUnauthenticated)
	})

	t.Run("formatting does not matter", func(t *testing.T) {
		sloppy := "  " + string(backupCodes[1][0]|0x20) + backupCodes[1][1:] // lowercase first char
		assert.NoError(t, svc.Verify(ctx, user.ID, sloppy))
	})
}

func TestTwoFactorService_DisableAndRegenerate(t *testing.T) {
	svc, repo := newTwoFactorFixture(t)
	ctx := context.Background()
	user := testUser()

	setup, err := svc.Setup(ctx, user)
	require.NoError(t, err)
	oldCodes, err := svc.Enable(ctx, user.ID, liveCode(t, setup.Secret))
	require.NoError(t, err)

	t.Run("regenerate requires a fresh verify and replaces the set", func(t *testing.T) {
		_, err := svc.RegenerateBackupCodes(ctx, user.ID, "000000")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)

		newCodes, err := svc.RegenerateBackupCodes(ctx, user.ID, liveCode(t, setup.Secret))
		require.NoError(t, err)
		require.Len(t, newCodes, 10)

		// The previous set stopped validating.
		assert.ErrorIs(t, svc.Verify(ctx, user.ID, oldCodes[3]), domain.ErrUnauthenticated)
		assert.NoError(t, svc.Verify(ctx, user.ID, newCodes[0]))
	})

	t.Run("disable requires a fresh verify", func(t *testing.T) {
		assert.ErrorIs(t, svc.Disable(ctx, user.ID, "000000"), domain.ErrUnauthenticated)

		require.NoError(t, svc.Disable(ctx, user.ID, liveCode(t, setup.Secret)))
		assert.Nil(t, repo.enrollment)

		enabled, err := svc.IsEnabled(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("verify without an enrollment", func(t *testing.T) {
		assert.ErrorIs(t, svc.Verify(ctx, user.ID, "123456"), ErrTwoFactorNotReady)
	})
}
