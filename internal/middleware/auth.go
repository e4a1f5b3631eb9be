package middleware

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gradebox/internal/auth"
	"github.com/sakif/gradebox/internal/handler"
)

// RequireBearer rejects requests without a valid bearer token and stores
// the token subject in the request context for the handlers below it.
//
// Failures answer 401 with a WWW-Authenticate challenge (RFC 6750) and the
// same JSON error body as every other non-execution failure. The reason is
// logged but never sent: telling a caller "expired" versus "bad signature"
// only helps someone forging tokens.
func RequireBearer(tokens *auth.TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := tokens.ClientFromRequest(r)
			if err != nil {
				logger.Debug("bearer token rejected", slog.String("error", err.Error()))
				w.Header().Set("WWW-Authenticate", `Bearer realm="gradebox"`)
				handler.WriteError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClient(r.Context(), client)))
		})
	}
}
