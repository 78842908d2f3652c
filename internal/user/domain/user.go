package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// User is the core user entity.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // empty for federated accounts
	Federated    bool   // true when the account was created through Google sign-in
	// RefreshTokens holds digests of currently valid refresh tokens, oldest first.
	RefreshTokens []string

	Bio            string
	FavoriteDrink  string
	Location       string
	FollowersCount int64
	FollowingCount int64
	PostsCount     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email looks like an address.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if !u.Federated && u.PasswordHash == "" {
		return errors.New("password hash is required for non-federated users")
	}
	if u.RefreshTokens == nil {
		u.RefreshTokens = []string{}
	}
	return nil
}

// HasRefreshToken reports whether digest is one of the user's stored refresh token digests.
func (u *User) HasRefreshToken(digest string) bool {
	for _, d := range u.RefreshTokens {
		if d == digest {
			return true
		}
	}
	return false
}
