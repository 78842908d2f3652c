// Package google verifies Google ID tokens and revokes Google OAuth tokens.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"
)

var (
	// ErrMissingClientID is returned when no OAuth client id is configured to use as audience.
	ErrMissingClientID = errors.New("google client id is not configured")
	// ErrInvalidIDToken is returned when Google rejects the ID token signature, audience or expiry.
	ErrInvalidIDToken = errors.New("invalid google id token")
	// ErrEmailMissing is returned when a valid ID token carries no email claim.
	ErrEmailMissing = errors.New("google id token has no email")
	// ErrEmailUnverified is returned when Google reports the email as unverified.
	ErrEmailUnverified = errors.New("google account email is not verified")
)

// Identity is the subset of ID token claims used to find or create a local user.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Verifier verifies an ID token and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

type validateFunc func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

// IDTokenVerifier validates tokens against Google's published signing keys with the client id as audience.
type IDTokenVerifier struct {
	clientID string
	validate validateFunc
}

// NewIDTokenVerifier returns a Verifier for clientID. An empty clientID yields ErrMissingClientID on every call.
func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: strings.TrimSpace(clientID), validate: idtoken.Validate}
}

// Verify checks signature, audience and expiry, then extracts email and name.
func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if v.clientID == "" {
		return nil, ErrMissingClientID
	}
	payload, err := v.validate(ctx, idToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	email, _ := payload.Claims["email"].(string)
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailMissing
	}
	if !emailVerified(payload.Claims["email_verified"]) {
		return nil, ErrEmailUnverified
	}
	name, _ := payload.Claims["name"].(string)
	return &Identity{Subject: payload.Subject, Email: email, Name: name}, nil
}

// emailVerified accepts both the boolean and the string form of the claim. Only an explicit
// false rejects; an absent claim counts as verified.
func emailVerified(v any) bool {
	switch b := v.(type) {
	case nil:
		return true
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
