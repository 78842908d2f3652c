package google

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RevokeURL is Google's OAuth 2.0 token revocation endpoint.
const RevokeURL = "https://oauth2.googleapis.com/revoke"

// Revoker revokes upstream OAuth tokens with Google.
type Revoker struct {
	client   *http.Client
	endpoint string
}

// NewRevoker returns a Revoker posting to endpoint (RevokeURL when empty). A nil client gets an
// instrumented client with a 5s timeout.
func NewRevoker(client *http.Client, endpoint string) *Revoker {
	if client == nil {
		client = &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if endpoint == "" {
		endpoint = RevokeURL
	}
	return &Revoker{client: client, endpoint: endpoint}
}

// Revoke asks Google to invalidate token. Any non-2xx response is returned as an error.
func (r *Revoker) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("google revoke: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("google revoke: unexpected status %d", resp.StatusCode)
	}
	return nil
}
