package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errMissingBearer = errors.New("auth: missing bearer token")

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const clientKey contextKey = "client"

// WithClient returns a copy of ctx carrying the authenticated client.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authenticated client, if any.
func ClientFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientKey).(string)
	return id, ok && id != ""
}

// ClientFromRequest validates the request's bearer token and returns its
// subject.
func (s *TokenService) ClientFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errMissingBearer
	}
	return s.Validate(strings.TrimSpace(token))
}
