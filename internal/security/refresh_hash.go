package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// DigestRefreshToken returns the hex SHA-256 digest stored in place of a raw refresh token.
func DigestRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshDigestMatches compares token against a stored digest in constant time.
func RefreshDigestMatches(token string, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(DigestRefreshToken(token)), []byte(digest)) == 1
}
