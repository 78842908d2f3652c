package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordCost is the lowest bcrypt cost accepted for stored credentials.
const MinPasswordCost = 10

// ErrPasswordMismatch is returned by Verify when the password does not match the hash.
var ErrPasswordMismatch = errors.New("password does not match")

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost clamped to [MinPasswordCost, bcrypt.MaxCost].
func NewHasher(cost int) *Hasher {
	if cost < MinPasswordCost {
		cost = MinPasswordCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns a salted bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares password against hash in constant time. It returns nil on match,
// ErrPasswordMismatch on mismatch, and the bcrypt error for a malformed or empty hash.
func (h *Hasher) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
