package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScopesAllow(t *testing.T) {
	scopes := []string{"files:read", "files:create"}

	assert.True(t, ScopesAllow(scopes, "files:read"))
	assert.False(t, ScopesAllow(scopes, "files:delete"))
	assert.False(t, ScopesAllow(nil, "files:read"))

	t.Run("wildcard grants every scope", func(t *testing.T) {
		assert.True(t, ScopesAllow([]string{ScopeWildcard}, "billing:manage"))
	})

	t.Run("no wildcard matching within a scope", func(t *testing.T) {
		assert.False(t, ScopesAllow([]string{"files:*"}, "files:read"))
	})
}

func TestAPIKey_ExpiredAt(t *testing.T) {
	now := time.Now().UTC()

	key := &APIKey{}
	assert.False(t, key.ExpiredAt(now), "no expiry never expires")

	past := now.Add(-time.Minute)
	key.ExpiresAt = &past
	assert.True(t, key.ExpiredAt(now))

	future := now.Add(time.Minute)
	key.ExpiresAt = &future
	assert.False(t, key.ExpiredAt(now))
}

func TestAPIKey_AllowsIP(t *testing.T) {
	key := &APIKey{}
	assert.True(t, key.AllowsIP("203.0.113.9"), "empty allow-list admits everyone")

	key.IPWhitelist = []string{"10.0.0.1", "10.0.0.2"}
	assert.True(t, key.AllowsIP("10.0.0.2"))
	assert.False(t, key.AllowsIP("10.0.0.3"))
}
