package repository

import (
	"context"
	"errors"

	"content-with-coffee/backend/internal/user/domain"
)

var (
	// ErrDuplicateEmail is returned by Create when a user with the same email already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUserNotFound is returned by mutations addressed at a user id that does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Repository defines persistence for users and their refresh token digests.
// Lookups return (nil, nil) when no user matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create inserts u. Returns ErrDuplicateEmail on a unique email violation.
	Create(ctx context.Context, u *domain.User) error
	// FindOrCreateFederated atomically returns the user with u.Email, inserting u first if none exists.
	FindOrCreateFederated(ctx context.Context, u *domain.User) (*domain.User, error)

	// AddRefreshToken appends digest to the user's collection in one update, keeping only the
	// newest keep entries when keep > 0.
	AddRefreshToken(ctx context.Context, userID, digest string, keep int) error
	// ConsumeRefreshToken removes digest only if present and reports whether it did.
	// Concurrent calls for the same digest have exactly one winner.
	ConsumeRefreshToken(ctx context.Context, userID, digest string) (bool, error)
	// HasRefreshToken reports whether digest is in the user's collection without modifying it.
	HasRefreshToken(ctx context.Context, userID, digest string) (bool, error)
	// RemoveRefreshToken removes digest if present. Removing an absent digest is not an error.
	RemoveRefreshToken(ctx context.Context, userID, digest string) error

	// Ping checks the store connection.
	Ping(ctx context.Context) error
}
