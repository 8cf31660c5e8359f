// Package cryptoutil provides the hashing helpers behind content ETags:
// hex-encoded SHA-256 digests and timing-safe digest comparison.
package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashEqual compares two digest strings in constant time. Length is not
// secret for fixed-width digests, so the early length check leaks nothing.
func HashEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
