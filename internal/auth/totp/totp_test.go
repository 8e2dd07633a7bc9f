package totp

import (
	"regexp"
	"testing"
	"time"

	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	key, err := GenerateSecret("DriftBox", "ada@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, key.Secret())
	assert.Equal(t, "DriftBox", key.Issuer())
	assert.Equal(t, "ada@example.com", key.AccountName())
	assert.Contains(t, key.URL(), "otpauth://totp/")

	other, err := GenerateSecret("DriftBox", "ada@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, key.Secret(), other.Secret())
}

func TestValidateCode(t *testing.T) {
	key, err := GenerateSecret("DriftBox", "ada@example.com")
	require.NoError(t, err)

	code, err := pqtotp.GenerateCode(key.Secret(), time.Now().UTC())
	require.NoError(t, err)

	t.Run("live code", func(t *testing.T) {
		assert.True(t, ValidateCode(key.Secret(), code))
	})

	t.Run("whitespace tolerated", func(t *testing.T) {
		assert.True(t, ValidateCode(key.Secret(), "  "+code+" "))
	})

	t.Run("adjacent period tolerated", func(t *testing.T) {
		previous, err := pqtotp.GenerateCode(key.Secret(), time.Now().UTC().Add(-period*time.Second))
		require.NoError(t, err)
		assert.True(t, ValidateCode(key.Secret(), previous))
	})

	t.Run("stale code", func(t *testing.T) {
		stale, err := pqtotp.GenerateCode(key.Secret(), time.Now().UTC().Add(-10*period*time.Second))
		require.NoError(t, err)
		assert.False(t, ValidateCode(key.Secret(), stale))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.False(t, ValidateCode(key.Secret(), "000000"))
		assert.False(t, ValidateCode(key.Secret(), "not-a-code"))
		assert.False(t, ValidateCode("", code))
	})
}

func TestBackupCodes(t *testing.T) {
	plaintext, hashed, err := GenerateBackupCodes()
	require.NoError(t, err)
	require.Len(t, plaintext, NumBackupCodes)
	require.Len(t, hashed, NumBackupCodes)

	format := regexp.MustCompile(`^[A-Z2-9]{4}-[A-Z2-9]{4}$`)
	seen := make(map[string]bool, NumBackupCodes)
	for _, code := range plaintext {
		assert.Regexp(t, format, code)
		assert.False(t, seen[code], "codes must be unique within a set")
		seen[code] = true
	}

	t.Run("verify returns the matched index", func(t *testing.T) {
		ok, index := VerifyBackupCode(hashed, plaintext[3])
		assert.True(t, ok)
		assert.Equal(t, 3, index)
	})

	t.Run("formatting variants match", func(t *testing.T) {
		variants := []string{
			NormalizeBackupCode(plaintext[0]),
			" " + plaintext[0] + " ",
			plaintext[0][:4] + " " + plaintext[0][5:],
		}
		for _, v := range variants {
			ok, index := VerifyBackupCode(hashed, v)
			assert.True(t, ok, "variant %q", v)
			assert.Equal(t, 0, index)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		ok, index := VerifyBackupCode(hashed, "ZZZZ-ZZZZ")
		assert.False(t, ok)
		assert.Equal(t, -1, index)
	})

	t.Run("empty digest set", func(t *testing.T) {
		ok, index := VerifyBackupCode(nil, plaintext[0])
		assert.False(t, ok)
		assert.Equal(t, -1, index)
	})
}

func TestNormalizeBackupCode(t *testing.T) {
	assert.Equal(t, "ABCDEFGH", NormalizeBackupCode("abcd-efgh"))
	assert.Equal(t, "ABCDEFGH", NormalizeBackupCode("ABCD EFGH"))
	assert.Equal(t, "ABCDEFGH", NormalizeBackupCode("  abcdefgh  "))
}
