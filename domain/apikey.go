package domain

import "time"

// APIKeyEnvironment separates live from test key material. The environment
// is baked into the public key prefix so it is visible at a glance.
type APIKeyEnvironment string

const (
	APIKeyEnvLive APIKeyEnvironment = "live"
	APIKeyEnvTest APIKeyEnvironment = "test"
)

// ScopeWildcard grants every scope; reserved for admin-minted keys.
const ScopeWildcard = "*"

// APIKey is a persisted machine credential. The secret half is returned to
// the caller exactly once at mint/rotate time and stored only as a one-way
// digest plus a short display prefix.
type APIKey struct {
	ID              string            `bson:"_id" json:"id"`
	OwnerUserID     string            `bson:"owner_user_id" json:"owner_user_id"`
	Name            string            `bson:"name" json:"name"`
	PublicKey       string            `bson:"public_key" json:"public_key"`
	SecretKeyHash   string            `bson:"secret_key_hash" json:"-"`
	SecretKeyPrefix string            `bson:"secret_key_prefix" json:"secret_key_prefix"`
	Scopes          []string          `bson:"scopes" json:"scopes"`
	Environment     APIKeyEnvironment `bson:"environment" json:"environment"`

	// IPWhitelist, when non-empty, restricts use to the listed literal
	// addresses. No CIDR matching.
	IPWhitelist []string `bson:"ip_whitelist,omitempty" json:"ip_whitelist,omitempty"`

	RateLimitPerMinute int        `bson:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	ExpiresAt          *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	LastUsedAt         *time.Time `bson:"last_used_at,omitempty" json:"last_used_at,omitempty"`
	IsRevoked          bool       `bson:"is_revoked" json:"is_revoked"`
	CreatedAt          time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at" json:"updated_at"`
}

// ScopesAllow reports whether a scope list satisfies the required scope,
// either exactly or through the wildcard admin scope. It serves both the key
// record and the Scopes carried on an API-key identity.
func ScopesAllow(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == required || s == ScopeWildcard {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the key's optional expiry has passed.
func (k *APIKey) ExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// AllowsIP reports whether the caller address passes the optional literal
// allow-list. An empty list allows every address.
func (k *APIKey) AllowsIP(ip string) bool {
	if len(k.IPWhitelist) == 0 {
		return true
	}
	for _, allowed := range k.IPWhitelist {
		if allowed == ip {
			return true
		}
	}
	return false
}
