package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/audit"
	"github.com/driftbox/authcore/internal/metrics"
)

const (
	// ceremonyTTL bounds the window between Begin and Finish of a WebAuthn
	// ceremony. Ceremony state is single-use: loading it deletes it.
	ceremonyTTL = 5 * time.Minute

	ceremonyKindRegistration = "register"
	ceremonyKindLogin        = "login"
)

// ErrCeremonyExpired is returned when Finish is called without a live Begin,
// including when the ceremony nonce was already consumed.
var ErrCeremonyExpired = errors.New("webauthn ceremony expired or already used")

// PasskeyService runs WebAuthn registration and login ceremonies and owns the
// stored credentials. Ceremony state lives in the cache between the Begin and
// Finish halves, so ceremonies survive process restarts and load balancing.
type PasskeyService struct {
	repo     domain.PasskeyRepository
	store    cache.Store
	webauthn *webauthn.WebAuthn
}

func NewPasskeyService(repo domain.PasskeyRepository, store cache.Store, wa *webauthn.WebAuthn) *PasskeyService {
	return &PasskeyService{repo: repo, store: store, webauthn: wa}
}

// webauthnUser adapts a user and their stored credentials to the
// webauthn.User interface.
type webauthnUser struct {
	user        *domain.User
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.user.ID) }
func (u *webauthnUser) WebAuthnName() string                       { return u.user.Email }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.user.DisplayName }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

func (s *PasskeyService) webauthnUser(ctx context.Context, user *domain.User) (*webauthnUser, []*domain.PasskeyCredential, error) {
	stored, err := s.repo.ListCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list credentials: %w", err)
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		creds = append(creds, c.ToWebAuthn())
	}
	return &webauthnUser{user: user, credentials: creds}, stored, nil
}

// BeginRegistration starts a credential-creation ceremony. Already-enrolled
// authenticators are excluded so one device cannot register twice.
func (s *PasskeyService) BeginRegistration(ctx context.Context, user *domain.User) (*protocol.CredentialCreation, error) {
	waUser, stored, err := s.webauthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(stored))
	for _, c := range stored {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.CredentialID,
		})
	}

	options, sessionData, err := s.webauthn.BeginRegistration(waUser, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if err := s.storeCeremony(ctx, user.ID, ceremonyKindRegistration, sessionData); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishRegistration verifies the authenticator's response against the
// pending ceremony and persists the new credential.
func (s *PasskeyService) FinishRegistration(ctx context.Context, user *domain.User, response *protocol.ParsedCredentialCreationData, deviceName string) (*domain.PasskeyCredential, error) {
	sessionData, err := s.loadCeremony(ctx, user.ID, ceremonyKindRegistration)
	if err != nil {
		return nil, err
	}
	waUser, _, err := s.webauthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	cred, err := s.webauthn.CreateCredential(waUser, *sessionData, response)
	if err != nil {
		audit.Log("PasskeyService", "FinishRegistration", user.ID, "", "Registration ceremony failed", false, err)
		return nil, domain.ErrUnauthenticated
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	record := &domain.PasskeyCredential{
		ID:              uuid.NewString(),
		UserID:          user.ID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AAGUID:          cred.Authenticator.AAGUID,
		Counter:         cred.Authenticator.SignCount,
		DeviceName:      deviceName,
		DeviceType:      domain.PasskeyDeviceType(cred.Flags.BackupEligible),
		Transports:      transports,
		AttestationType: cred.AttestationType,
		BackupEligible:  cred.Flags.BackupEligible,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.CreateCredential(ctx, record); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	audit.Log("PasskeyService", "FinishRegistration", user.ID, record.ID, "Passkey registered", true, nil)
	return record, nil
}

// BeginLogin starts an assertion ceremony for an identified user.
func (s *PasskeyService) BeginLogin(ctx context.Context, user *domain.User) (*protocol.CredentialAssertion, error) {
	waUser, stored, err := s.webauthnUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, domain.ErrNotFound
	}

	options, sessionData, err := s.webauthn.BeginLogin(waUser)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}
	if err := s.storeCeremony(ctx, user.ID, ceremonyKindLogin, sessionData); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishLogin verifies the assertion against the pending ceremony. A
// signature-counter regression is a clone signal and fails the login hard;
// the affected credential stays enrolled for the user to inspect and revoke.
func (s *PasskeyService) FinishLogin(ctx context.Context, user *domain.User, response *protocol.ParsedCredentialAssertionData) (*domain.PasskeyCredential, error) {
	sessionData, err := s.loadCeremony(ctx, user.ID, ceremonyKindLogin)
	if err != nil {
		return nil, err
	}
	waUser, _, err := s.webauthnUser(ctx, user)
	if err != nil {
		return nil, err
	}

	cred, err := s.webauthn.ValidateLogin(waUser, *sessionData, response)
	if err != nil {
		audit.Log("PasskeyService", "FinishLogin", user.ID, "", "Login ceremony failed", false, err)
		return nil, domain.ErrUnauthenticated
	}

	record, err := s.loginCredential(ctx, user.ID, cred.ID)
	if err != nil {
		return nil, err
	}

	if cred.Authenticator.CloneWarning {
		metrics.PasskeyCloneSignalTotal.Inc()
		audit.Log("PasskeyService", "FinishLogin", user.ID, record.ID,
			fmt.Sprintf("Signature counter regressed (stored %d, asserted %d)", record.Counter, cred.Authenticator.SignCount),
			false, nil)
		return nil, domain.ErrUnauthenticated
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateCredentialCounter(ctx, record.ID, cred.Authenticator.SignCount, now); err != nil {
		log.Warn().Err(err).Str("credentialID", record.ID).Msg("Failed to record passkey counter")
	}
	record.Counter = cred.Authenticator.SignCount
	record.LastUsedAt = &now

	metrics.PasskeyLoginSuccessTotal.Inc()
	return record, nil
}

// loginCredential resolves a validated assertion's credential id to the
// stored record by its unique index. A record enrolled under a different user
// never authenticates, even if the ceremony somehow validated it.
func (s *PasskeyService) loginCredential(ctx context.Context, userID string, credentialID []byte) (*domain.PasskeyCredential, error) {
	record, err := s.repo.GetCredentialByCredentialID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if record.UserID != userID {
		return nil, domain.ErrUnauthenticated
	}
	return record, nil
}

// ListPasskeys returns the user's enrolled credentials.
func (s *PasskeyService) ListPasskeys(ctx context.Context, userID string) ([]*domain.PasskeyCredential, error) {
	return s.repo.ListCredentialsByUser(ctx, userID)
}

// DeletePasskey removes one of the user's credentials. Deleting a credential
// the user does not own reports not found.
func (s *PasskeyService) DeletePasskey(ctx context.Context, userID, id string) error {
	if err := s.repo.DeleteCredential(ctx, userID, id); err != nil {
		return err
	}
	audit.Log("PasskeyService", "DeletePasskey", userID, id, "Passkey removed", true, nil)
	return nil
}

func ceremonyKey(userID, kind string) string {
	return "passkey_ceremony:" + userID + ":" + kind
}

func (s *PasskeyService) storeCeremony(ctx context.Context, userID, kind string, sessionData *webauthn.SessionData) error {
	if err := s.store.SetJSON(ctx, ceremonyKey(userID, kind), sessionData, ceremonyTTL); err != nil {
		return fmt.Errorf("store ceremony state: %w", err)
	}
	return nil
}

// loadCeremony retrieves and consumes the pending ceremony state. The delete
// happens before verification so a failed Finish cannot be retried against
// the same challenge.
func (s *PasskeyService) loadCeremony(ctx context.Context, userID, kind string) (*webauthn.SessionData, error) {
	key := ceremonyKey(userID, kind)
	var sessionData webauthn.SessionData
	found, err := s.store.GetJSON(ctx, key, &sessionData)
	if err != nil {
		return nil, fmt.Errorf("load ceremony state: %w", err)
	}
	if !found {
		return nil, ErrCeremonyExpired
	}
	if err := s.store.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Failed to delete ceremony state")
	}
	return &sessionData, nil
}
