package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey hashes an opaque credential (session id, public key) before it is
// used as a cache key. Keys stay a fixed short length, and raw credential
// material never appears in the store's keyspace.
func HashKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
