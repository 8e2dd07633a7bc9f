package apikeysig

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveVerifier(t *testing.T) {
	verifier := DeriveVerifier("dbx_live_abc", "dbs_secret")

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, verifier, DeriveVerifier("dbx_live_abc", "dbs_secret"))
	})

	t.Run("salted per key", func(t *testing.T) {
		assert.NotEqual(t, verifier, DeriveVerifier("dbx_live_xyz", "dbs_secret"))
	})

	t.Run("verify accepts only the original secret", func(t *testing.T) {
		assert.True(t, VerifySecret("dbx_live_abc", "dbs_secret", verifier))
		assert.False(t, VerifySecret("dbx_live_abc", "dbs_other", verifier))
		assert.False(t, VerifySecret("dbx_live_xyz", "dbs_secret", verifier))
	})
}

func TestVerifySignature(t *testing.T) {
	signingKey := DeriveVerifier("dbx_live_abc", "dbs_secret")
	now := time.Now().UTC()
	payload := []byte(`{"op":"upload"}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := Sign(signingKey, timestamp, payload)

	t.Run("valid", func(t *testing.T) {
		assert.True(t, VerifySignature(signingKey, timestamp, payload, signature, now))
	})

	t.Run("empty payload is valid input", func(t *testing.T) {
		sig := Sign(signingKey, timestamp, nil)
		assert.True(t, VerifySignature(signingKey, timestamp, nil, sig, now))
		assert.NotEqual(t, signature, sig)
	})

	t.Run("tampered payload", func(t *testing.T) {
		assert.False(t, VerifySignature(signingKey, timestamp, []byte(`{"op":"delete"}`), signature, now))
	})

	t.Run("wrong key", func(t *testing.T) {
		other := DeriveVerifier("dbx_live_abc", "dbs_other")
		assert.False(t, VerifySignature(other, timestamp, payload, signature, now))
	})

	t.Run("skew window boundaries", func(t *testing.T) {
		within := strconv.FormatInt(now.Add(-SkewWindow+time.Second).Unix(), 10)
		assert.True(t, VerifySignature(signingKey, within, payload, Sign(signingKey, within, payload), now))

		ahead := strconv.FormatInt(now.Add(SkewWindow-time.Second).Unix(), 10)
		assert.True(t, VerifySignature(signingKey, ahead, payload, Sign(signingKey, ahead, payload), now))

		past := strconv.FormatInt(now.Add(-SkewWindow-time.Minute).Unix(), 10)
		assert.False(t, VerifySignature(signingKey, past, payload, Sign(signingKey, past, payload), now))

		future := strconv.FormatInt(now.Add(SkewWindow+time.Minute).Unix(), 10)
		assert.False(t, VerifySignature(signingKey, future, payload, Sign(signingKey, future, payload), now))
	})

	t.Run("non-numeric timestamp", func(t *testing.T) {
		assert.False(t, VerifySignature(signingKey, "yesterday", payload, signature, now))
	})
}
