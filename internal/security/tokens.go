package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed, or fails claim checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a correctly signed token is past its exp claim. It matches ErrInvalidToken.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
	// ErrMissingSecret is returned when the signing secret for the requested token kind is not configured.
	ErrMissingSecret = errors.New("token signing secret is not configured")
)

// Claims is the claim set shared by access and refresh tokens. The jti (ID) is a
// random per-token nonce so two tokens minted in the same second never collide.
type Claims struct {
	jwt.RegisteredClaims
}

// IssuedToken is a signed token with its nonce and expiry.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TokenPair is an access/refresh pair minted together for one user.
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// TokenProvider issues and validates HS256 access and refresh tokens signed with separate secrets.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption configures a TokenProvider.
type TokenOption func(*TokenProvider)

// WithClock sets the clock used for iat/exp when minting and for exp when validating.
func WithClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewTokenProvider returns a TokenProvider. Empty secrets are allowed here; operations needing
// them fail with ErrMissingSecret so a misconfigured process still serves other requests.
func NewTokenProvider(accessSecret, refreshSecret, issuer, audience string, accessTTL, refreshTTL time.Duration, opts ...TokenOption) *TokenProvider {
	p := &TokenProvider{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AccessConfigured reports whether the access-signing secret is set.
func (p *TokenProvider) AccessConfigured() bool { return len(p.accessSecret) > 0 }

// RefreshConfigured reports whether the refresh-signing secret is set.
func (p *TokenProvider) RefreshConfigured() bool { return len(p.refreshSecret) > 0 }

// RefreshTTL returns the refresh token lifetime (also the cookie lifetime).
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess mints a short-lived access token for userID.
func (p *TokenProvider) IssueAccess(userID string) (IssuedToken, error) {
	return p.issue(userID, p.accessSecret, p.accessTTL)
}

// IssueRefresh mints a long-lived refresh token for userID.
func (p *TokenProvider) IssueRefresh(userID string) (IssuedToken, error) {
	return p.issue(userID, p.refreshSecret, p.refreshTTL)
}

// IssuePair mints an access and a refresh token for userID. Both secrets must be configured.
func (p *TokenProvider) IssuePair(userID string) (*TokenPair, error) {
	if !p.AccessConfigured() || !p.RefreshConfigured() {
		return nil, ErrMissingSecret
	}
	access, err := p.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := p.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (p *TokenProvider) issue(userID string, secret []byte, ttl time.Duration) (IssuedToken, error) {
	if len(secret) == 0 {
		return IssuedToken{}, ErrMissingSecret
	}
	if userID == "" {
		return IssuedToken{}, ErrInvalidToken
	}
	jti, err := generateJTI()
	if err != nil {
		return IssuedToken{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, ID: jti, ExpiresAt: expiresAt}, nil
}

// ValidateAccess verifies signature, exp, iss and aud of an access token and returns its claims.
func (p *TokenProvider) ValidateAccess(tokenString string) (*Claims, error) {
	return p.parse(tokenString, p.accessSecret, true)
}

// ValidateRefresh verifies signature, exp, iss and aud of a refresh token and returns its claims.
func (p *TokenProvider) ValidateRefresh(tokenString string) (*Claims, error) {
	return p.parse(tokenString, p.refreshSecret, true)
}

// RefreshSubject returns the subject of a refresh token whose signature is valid, ignoring
// expiry and other time-based claims. Used by logout to purge tokens that have already expired.
func (p *TokenProvider) RefreshSubject(tokenString string) (string, error) {
	claims, err := p.parse(tokenString, p.refreshSecret, false)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (p *TokenProvider) parse(tokenString string, secret []byte, validateClaims bool) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	}
	if validateClaims {
		opts = append(opts, jwt.WithExpirationRequired())
		if p.issuer != "" {
			opts = append(opts, jwt.WithIssuer(p.issuer))
		}
		if p.audience != "" {
			opts = append(opts, jwt.WithAudience(p.audience))
		}
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
