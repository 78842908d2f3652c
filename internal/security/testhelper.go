package security

import "time"

// Test signing secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-do-not-use"
	testRefreshSecret = "test-refresh-secret-do-not-use"
)

// NewTestTokenProvider returns a TokenProvider with fixed test secrets, a 15m access TTL and a
// 7d refresh TTL. For unit tests only. Callers must not use in production.
func NewTestTokenProvider(opts ...TokenOption) *TokenProvider {
	return NewTokenProvider(testAccessSecret, testRefreshSecret, "test-issuer", "test-audience", 15*time.Minute, 7*24*time.Hour, opts...)
}
