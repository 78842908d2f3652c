// Package respond writes JSON API responses and decodes JSON request bodies.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"content-with-coffee/backend/internal/autherr"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrEmptyBody is returned by Decode when the request has no body.
var ErrEmptyBody = errors.New("empty body")

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// JSON writes v as the response body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as {success:false, message} with the status for its autherr.Kind.
// Internal errors are reported with a generic message.
func Error(w http.ResponseWriter, err error) {
	JSON(w, autherr.KindOf(err).HTTPStatus(), ErrorBody{Success: false, Message: autherr.PublicMessage(err)})
}

// Decode reads a single JSON object from r into dst. An empty body yields ErrEmptyBody.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("extra data after JSON object")
	}
	return nil
}
