// Package apikeysig implements the digest scheme shared by both API-key
// verification modes.
//
// The stored verifier for a key is HMAC-SHA256 keyed with the public key
// over the secret: deterministic, salted per key, and derivable by anyone
// holding the secret. Simple mode recomputes it from the presented secret
// and compares in constant time. Signed mode uses the verifier itself as
// the HMAC key over "timestamp.payload", so the server never needs the raw
// secret after mint time; clients derive the same signing key from their
// secret. The signature never expires — only the timestamp skew window
// bounds replay.
package apikeysig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SkewWindow is the accepted clock drift for signed requests, each side of
// the server's clock.
const SkewWindow = 5 * time.Minute

// DeriveVerifier computes the stored one-way verifier for a secret.
func DeriveVerifier(publicKey, secret string) string {
	mac := hmac.New(sha256.New, []byte(publicKey))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySecret checks a presented secret against the stored verifier in
// constant time.
func VerifySecret(publicKey, secret, storedVerifier string) bool {
	derived := DeriveVerifier(publicKey, secret)
	return hmac.Equal([]byte(derived), []byte(storedVerifier))
}

// Sign computes the signed-mode signature over the canonical
// "timestamp.payload" string. signingKey is the stored verifier.
func Sign(signingKey, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature and compares digests
// byte-for-byte in constant time, after rejecting timestamps outside the
// skew window. timestamp is seconds since the Unix epoch.
func VerifySignature(signingKey, timestamp string, payload []byte, signature string, now time.Time) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift > SkewWindow || drift < -SkewWindow {
		return false
	}
	expected := Sign(signingKey, timestamp, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
