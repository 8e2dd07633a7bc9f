// Package auth holds the credential primitives the services compose:
// random token minting and one-way secret hashing.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NewToken returns a cryptographically random, URL-safe token of n source
// bytes. Session identifiers and key material all come from here.
func NewToken(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
