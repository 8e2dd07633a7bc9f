package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/audit"
	"github.com/driftbox/authcore/internal/auth/totp"
	"github.com/driftbox/authcore/internal/metrics"
)

// enabledFlagTTL caches the enabled/disabled projection consulted on every
// login. The cache is invalidated synchronously on every state change, so
// the TTL only bounds staleness after a missed invalidation.
const enabledFlagTTL = 5 * time.Minute

// ErrTwoFactorNotReady is returned when an operation requires a completed
// setup that has not happened yet.
var ErrTwoFactorNotReady = errors.New("two-factor setup not initiated")

// ErrTwoFactorAlreadyEnabled rejects setup/enable on an enabled enrollment.
var ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")

// TwoFactorSetup is the provisioning data returned by Setup, shown to the
// user exactly once.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
}

// TwoFactorService manages TOTP enrollments and backup codes.
type TwoFactorService struct {
	repo    domain.TwoFactorRepository
	issuer  string
	enabled *cache.Lookup[bool]
}

// NewTwoFactorService creates a TwoFactorService. issuer is the name shown
// in authenticator apps.
func NewTwoFactorService(repo domain.TwoFactorRepository, store cache.Store, issuer string) *TwoFactorService {
	s := &TwoFactorService{repo: repo, issuer: issuer}
	s.enabled = cache.NewLookup(store, "twofactor_enabled", enabledFlagTTL, func(ctx context.Context, userID string) (bool, error) {
		enrollment, err := repo.GetEnrollment(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return enrollment.IsEnabled, nil
	})
	return s
}

// Setup issues a fresh shared secret and provisioning URI without enabling
// anything. Re-running setup before verification replaces the pending
// secret; once an enrollment is enabled, setup is rejected.
func (s *TwoFactorService) Setup(ctx context.Context, user *domain.User) (*TwoFactorSetup, error) {
	existing, err := s.repo.GetEnrollment(ctx, user.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if existing != nil && existing.IsEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	key, err := totp.GenerateSecret(s.issuer, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	enrollment := &domain.TwoFactorEnrollment{
		UserID: user.ID,
		Method: domain.TwoFactorMethodTOTP,
		Secret: key.Secret(),
	}
	if existing != nil {
		enrollment.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.UpsertEnrollment(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("store enrollment: %w", err)
	}

	return &TwoFactorSetup{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// Enable turns the enrollment on after the user proves possession with a
// live code against the just-issued secret. The returned backup codes are
// plaintext exactly once; only their digests are stored.
func (s *TwoFactorService) Enable(ctx context.Context, userID, code string) ([]string, error) {
	enrollment, err := s.repo.GetEnrollment(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrTwoFactorNotReady
		}
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if enrollment.IsEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if enrollment.Secret == "" {
		return nil, ErrTwoFactorNotReady
	}

	if !totp.ValidateCode(enrollment.Secret, code) {
		metrics.TwoFactorVerifyFailure.Inc()
		return nil, domain.ErrUnauthenticated
	}

	plaintext, hashed, err := totp.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	now := time.Now().UTC()
	enrollment.IsEnabled = true
	enrollment.IsVerified = true
	enrollment.BackupCodes = hashed
	enrollment.LastVerifiedAt = &now
	if err := s.repo.UpsertEnrollment(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("enable enrollment: %w", err)
	}

	s.invalidateFlag(ctx, userID)
	audit.Log("TwoFactorService", "Enable", userID, "", "Two-factor enabled", true, nil)
	return plaintext, nil
}

// Verify accepts either a live time-window code or a backup code. A backup
// code is consumed on first use and never validates again.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	enrollment, err := s.repo.GetEnrollment(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrTwoFactorNotReady
		}
		return fmt.Errorf("load enrollment: %w", err)
	}
	if !enrollment.IsEnabled {
		return ErrTwoFactorNotReady
	}

	now := time.Now().UTC()
	if totp.ValidateCode(enrollment.Secret, code) {
		enrollment.LastVerifiedAt = &now
		if err := s.repo.UpsertEnrollment(ctx, enrollment); err != nil {
			log.Warn().Err(err).Str("userID", userID).Msg("Failed to record two-factor verification time")
		}
		metrics.TwoFactorVerifySuccess.Inc()
		return nil
	}

	if ok, index := totp.VerifyBackupCode(enrollment.BackupCodes, code); ok {
		enrollment.BackupCodes = append(enrollment.BackupCodes[:index], enrollment.BackupCodes[index+1:]...)
		enrollment.LastVerifiedAt = &now
		if err := s.repo.UpsertEnrollment(ctx, enrollment); err != nil {
			// The code must not survive a failed consume; treat the write
			// error as a verification failure.
			return fmt.Errorf("consume backup code: %w", err)
		}
		metrics.TwoFactorVerifySuccess.Inc()
		audit.Log("TwoFactorService", "BackupCodeUsed", userID, "",
			fmt.Sprintf("%d backup codes remaining", len(enrollment.BackupCodes)), true, nil)
		return nil
	}

	metrics.TwoFactorVerifyFailure.Inc()
	return domain.ErrUnauthenticated
}

// Disable removes the enrollment entirely. It requires a fresh successful
// Verify with a live or backup code.
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	if err := s.Verify(ctx, userID, code); err != nil {
		return err
	}
	if err := s.repo.DeleteEnrollment(ctx, userID); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	s.invalidateFlag(ctx, userID)
	audit.Log("TwoFactorService", "Disable", userID, "", "Two-factor disabled", true, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup-code set after a fresh
// successful Verify. Previously unused codes stop validating.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.Verify(ctx, userID, code); err != nil {
		return nil, err
	}
	enrollment, err := s.repo.GetEnrollment(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	plaintext, hashed, err := totp.GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	enrollment.BackupCodes = hashed
	if err := s.repo.UpsertEnrollment(ctx, enrollment); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}
	audit.Log("TwoFactorService", "RegenerateBackupCodes", userID, "", "Backup codes regenerated", true, nil)
	return plaintext, nil
}

// IsEnabled reports whether the user has 2FA enabled, through the cached
// projection consulted on every login.
func (s *TwoFactorService) IsEnabled(ctx context.Context, userID string) (bool, error) {
	return s.enabled.Get(ctx, userID)
}

func (s *TwoFactorService) invalidateFlag(ctx context.Context, userID string) {
	if err := s.enabled.Invalidate(ctx, userID); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Failed to invalidate two-factor enabled flag")
	}
}
