package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken hashes a token string to a fixed-length cache key, so the raw
// token value never sits in the map keys.
func HashToken(token string) string {
	hasher := sha256.New()
	hasher.Write([]byte(token))
	return hex.EncodeToString(hasher.Sum(nil))
}
