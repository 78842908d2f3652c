package middleware

import (
	"context"
	"net/http"
	"strings"

	"content-with-coffee/backend/internal/server/respond"
)

const bearerPrefix = "bearer "

// AccessVerifier validates an access token and returns its subject.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (string, error)
}

// RequireAuth rejects requests without a valid Bearer access token and stores the token
// subject in the request context for downstream handlers. It never touches the user store.
func RequireAuth(v AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.VerifyAccess(r.Context(), BearerToken(r))
			if err != nil {
				respond.Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the subject of a valid Bearer access token when one is present and
// otherwise continues anonymously.
func OptionalAuth(v AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if userID, err := v.VerifyAccess(r.Context(), token); err == nil {
					r = r.WithContext(WithUserID(r.Context(), userID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken returns the token from the Authorization header, or "" if missing or not a Bearer credential.
func BearerToken(r *http.Request) string {
	return parseBearer(r.Header.Get("Authorization"))
}

func parseBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
