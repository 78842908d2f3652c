package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey   = contextKey{"user_id"}
	clientIPKey = contextKey{"client_ip"}
	requestKey  = contextKey{"request_id"}
)

// WithUserID returns a context carrying the authenticated user id (the access token subject).
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// WithClientIP returns a context carrying the caller's IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the client IP from context, or "" if unset. It matches audit.IPExtractor.
func GetClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

// GetRequestID returns the request id from context, or "" if unset.
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestKey).(string)
	return v
}
