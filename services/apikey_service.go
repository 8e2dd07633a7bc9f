package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/driftbox/authcore/cache"
	"github.com/driftbox/authcore/domain"
	"github.com/driftbox/authcore/internal/audit"
	"github.com/driftbox/authcore/internal/auth"
	"github.com/driftbox/authcore/internal/auth/apikeysig"
	"github.com/driftbox/authcore/internal/metrics"
)

const (
	publicKeyBytes = 18
	secretKeyBytes = 32

	secretPrefix       = "dbs_"
	secretDisplayChars = 8

	// apiKeyCacheTTL bounds staleness when an invalidation is missed.
	apiKeyCacheTTL = 10 * time.Minute

	rateLimitWindow      = time.Minute
	defaultRateLimit     = 60
	maxConfigurableLimit = 10000
)

// CreateAPIKeyParams are the caller-supplied attributes of a new key.
type CreateAPIKeyParams struct {
	Name               string                   `json:"name"`
	Scopes             []string                 `json:"scopes"`
	Environment        domain.APIKeyEnvironment `json:"environment"`
	IPWhitelist        []string                 `json:"ip_whitelist"`
	RateLimitPerMinute int                      `json:"rate_limit_per_minute"`
	ExpiresAt          *time.Time               `json:"expires_at"`
}

// APIKeyService manages machine credentials and authenticates requests
// bearing them, in either simple (public+secret) or signed (HMAC) mode.
type APIKeyService struct {
	repo   domain.APIKeyRepository
	store  cache.Store
	lookup *cache.Lookup[*domain.APIKey]
}

// NewAPIKeyService creates an APIKeyService. Key lookups by public key go
// through a read-through cache invalidated on every mutation.
func NewAPIKeyService(repo domain.APIKeyRepository, store cache.Store) *APIKeyService {
	s := &APIKeyService{repo: repo, store: store}
	s.lookup = cache.NewLookup(store, "apikey", apiKeyCacheTTL, func(ctx context.Context, publicKey string) (*domain.APIKey, error) {
		return repo.GetAPIKeyByPublicKey(ctx, publicKey)
	})
	return s
}

// CreateAPIKey mints a key pair: an environment-prefixed public half and a
// secret half returned exactly once. Only a one-way verifier of the secret
// and a short display prefix are persisted.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, ownerUserID string, params CreateAPIKeyParams) (*domain.APIKey, string, error) {
	if params.Name == "" {
		return nil, "", errors.New("api key name is required")
	}
	if params.Environment == "" {
		params.Environment = domain.APIKeyEnvLive
	}
	if params.RateLimitPerMinute <= 0 {
		params.RateLimitPerMinute = defaultRateLimit
	}
	if params.RateLimitPerMinute > maxConfigurableLimit {
		params.RateLimitPerMinute = maxConfigurableLimit
	}

	publicKey, err := mintPublicKey(params.Environment)
	if err != nil {
		return nil, "", err
	}
	secret, err := mintSecret()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	key := &domain.APIKey{
		ID:                 uuid.NewString(),
		OwnerUserID:        ownerUserID,
		Name:               params.Name,
		PublicKey:          publicKey,
		SecretKeyHash:      apikeysig.DeriveVerifier(publicKey, secret),
		SecretKeyPrefix:    secret[:len(secretPrefix)+secretDisplayChars],
		Scopes:             params.Scopes,
		Environment:        params.Environment,
		IPWhitelist:        params.IPWhitelist,
		RateLimitPerMinute: params.RateLimitPerMinute,
		ExpiresAt:          params.ExpiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}
	audit.Log("APIKeyService", "Create", ownerUserID, key.ID, "API key created", true, nil)
	return key, secret, nil
}

// RotateAPIKey replaces only the secret half of the key: public key,
// scopes and environment are preserved, the old secret stops validating
// immediately, and the cached lookup entry is invalidated.
func (s *APIKeyService) RotateAPIKey(ctx context.Context, ownerUserID, keyID string) (*domain.APIKey, string, error) {
	key, err := s.ownedKey(ctx, ownerUserID, keyID)
	if err != nil {
		return nil, "", err
	}

	secret, err := mintSecret()
	if err != nil {
		return nil, "", err
	}
	key.SecretKeyHash = apikeysig.DeriveVerifier(key.PublicKey, secret)
	key.SecretKeyPrefix = secret[:len(secretPrefix)+secretDisplayChars]

	if err := s.repo.UpdateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("rotate api key: %w", err)
	}
	if err := s.lookup.Invalidate(ctx, key.PublicKey); err != nil {
		log.Warn().Err(err).Str("keyID", key.ID).Msg("Failed to invalidate rotated api key cache entry")
	}
	audit.Log("APIKeyService", "Rotate", ownerUserID, key.ID, "API key secret rotated", true, nil)
	return key, secret, nil
}

// UpdateAPIKey edits the mutable attributes of a key (name, scopes, IP
// allow-list, rate limit, expiry) and invalidates the cached entry.
func (s *APIKeyService) UpdateAPIKey(ctx context.Context, ownerUserID, keyID string, params CreateAPIKeyParams) (*domain.APIKey, error) {
	key, err := s.ownedKey(ctx, ownerUserID, keyID)
	if err != nil {
		return nil, err
	}

	if params.Name != "" {
		key.Name = params.Name
	}
	if params.Scopes != nil {
		key.Scopes = params.Scopes
	}
	if params.IPWhitelist != nil {
		key.IPWhitelist = params.IPWhitelist
	}
	if params.RateLimitPerMinute > 0 {
		key.RateLimitPerMinute = min(params.RateLimitPerMinute, maxConfigurableLimit)
	}
	if params.ExpiresAt != nil {
		key.ExpiresAt = params.ExpiresAt
	}

	if err := s.repo.UpdateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("update api key: %w", err)
	}
	if err := s.lookup.Invalidate(ctx, key.PublicKey); err != nil {
		log.Warn().Err(err).Str("keyID", key.ID).Msg("Failed to invalidate updated api key cache entry")
	}
	return key, nil
}

// RevokeAPIKey soft-revokes the key. The record is kept for audit; only
// verification stops accepting it.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, ownerUserID, keyID string) error {
	key, err := s.ownedKey(ctx, ownerUserID, keyID)
	if err != nil {
		return err
	}
	if key.IsRevoked {
		return nil
	}
	key.IsRevoked = true
	if err := s.repo.UpdateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if err := s.lookup.Invalidate(ctx, key.PublicKey); err != nil {
		log.Warn().Err(err).Str("keyID", key.ID).Msg("Failed to invalidate revoked api key cache entry")
	}
	audit.Log("APIKeyService", "Revoke", ownerUserID, key.ID, "API key revoked", true, nil)
	return nil
}

// ListAPIKeys returns the owner's keys. Secret material is never included;
// the display prefix is all a listing ever shows.
func (s *APIKeyService) ListAPIKeys(ctx context.Context, ownerUserID string) ([]*domain.APIKey, error) {
	return s.repo.ListAPIKeysByOwner(ctx, ownerUserID)
}

// VerifySimple authenticates a public-key + secret pair, then applies the
// key's expiry, IP allow-list and rate limit.
func (s *APIKeyService) VerifySimple(ctx context.Context, publicKey, secret, callerIP string) (*domain.APIKey, error) {
	key, err := s.usableKey(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if !apikeysig.VerifySecret(publicKey, secret, key.SecretKeyHash) {
		metrics.APIKeyAuthFailureTotal.Inc()
		return nil, domain.ErrUnauthenticated
	}
	return s.admit(ctx, key, callerIP)
}

// VerifySigned authenticates an HMAC-signed request. Bad signatures and
// timestamps outside the skew window collapse into ErrUnauthenticated so
// the response shape leaks nothing about which check failed.
func (s *APIKeyService) VerifySigned(ctx context.Context, publicKey, timestamp string, payload []byte, signature, callerIP string) (*domain.APIKey, error) {
	key, err := s.usableKey(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if !apikeysig.VerifySignature(key.SecretKeyHash, timestamp, payload, signature, time.Now().UTC()) {
		metrics.APIKeyAuthFailureTotal.Inc()
		return nil, domain.ErrUnauthenticated
	}
	return s.admit(ctx, key, callerIP)
}

// usableKey resolves the key through the read-through cache and rejects
// unknown, revoked and expired keys identically.
func (s *APIKeyService) usableKey(ctx context.Context, publicKey string) (*domain.APIKey, error) {
	key, err := s.lookup.Get(ctx, publicKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.APIKeyAuthFailureTotal.Inc()
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	if key.IsRevoked || key.ExpiredAt(time.Now().UTC()) {
		metrics.APIKeyAuthFailureTotal.Inc()
		return nil, domain.ErrUnauthenticated
	}
	return key, nil
}

// admit applies the post-credential checks shared by both modes.
func (s *APIKeyService) admit(ctx context.Context, key *domain.APIKey, callerIP string) (*domain.APIKey, error) {
	if !key.AllowsIP(callerIP) {
		metrics.APIKeyAuthFailureTotal.Inc()
		return nil, domain.ErrUnauthenticated
	}
	if err := s.checkRateLimit(ctx, key); err != nil {
		return nil, err
	}

	// Best-effort bookkeeping; an error here never fails the request.
	if err := s.repo.TouchAPIKeyLastUsed(ctx, key.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Str("keyID", key.ID).Msg("Failed to update api key last-used timestamp")
	}
	metrics.APIKeyAuthSuccessTotal.Inc()
	return key, nil
}

// checkRateLimit enforces the per-minute budget. The check and the
// increment are two separate cache calls: under burst concurrency a window
// can briefly overshoot its limit by the number of in-flight requests.
// That overshoot is accepted; see DESIGN.md.
func (s *APIKeyService) checkRateLimit(ctx context.Context, key *domain.APIKey) error {
	bucket := "ratelimit:apikey:" + key.ID + ":" + strconv.FormatInt(time.Now().UTC().Unix()/60, 10)
	count, found, err := s.store.GetCounter(ctx, bucket)
	if err != nil {
		return fmt.Errorf("read rate limit counter: %w", err)
	}
	if found && count >= int64(key.RateLimitPerMinute) {
		metrics.APIKeyRateLimitedTotal.Inc()
		return domain.ErrRateLimited
	}
	if _, err := s.store.Increment(ctx, bucket, rateLimitWindow); err != nil {
		return fmt.Errorf("increment rate limit counter: %w", err)
	}
	return nil
}

func (s *APIKeyService) ownedKey(ctx context.Context, ownerUserID, keyID string) (*domain.APIKey, error) {
	key, err := s.repo.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key.OwnerUserID != ownerUserID {
		return nil, domain.ErrForbidden
	}
	return key, nil
}

func mintPublicKey(env domain.APIKeyEnvironment) (string, error) {
	token, err := auth.NewToken(publicKeyBytes)
	if err != nil {
		return "", fmt.Errorf("mint public key: %w", err)
	}
	return fmt.Sprintf("dbx_%s_%s", env, token), nil
}

func mintSecret() (string, error) {
	token, err := auth.NewToken(secretKeyBytes)
	if err != nil {
		return "", fmt.Errorf("mint secret key: %w", err)
	}
	return secretPrefix + token, nil
}
