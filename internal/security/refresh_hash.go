package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// RefreshTokenDigest returns the hex-encoded SHA-256 of a refresh token.
// Stores keep only digests; a leaked session list cannot be replayed.
func RefreshTokenDigest(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
