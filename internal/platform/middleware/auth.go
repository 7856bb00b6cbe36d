package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// CredentialValidator defines the interface for validating signed credentials.
type CredentialValidator interface {
	ValidateToken(tokenString string) (*Identity, error)
}

// Identity is the per-request authenticated identity. It carries only the
// account identifier; handlers that need the full account resolve it through
// the account store.
type Identity struct {
	AccountID string
}

type contextKeyIdentity struct{}

// ContextKeyIdentity is exported for tests that inject an identity directly.
var ContextKeyIdentity = contextKeyIdentity{}

// AccountID retrieves the authenticated account ID from the context.
func AccountID(ctx context.Context) string {
	identity, ok := ctx.Value(ContextKeyIdentity).(Identity)
	if !ok {
		return ""
	}
	return identity.AccountID
}

// WithIdentity injects an identity into the context; used by tests that call
// protected handlers directly.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, identity)
}

// writeJSONError writes a JSON error response with the given status code and
// error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"message":%q}`, errCode, message))
}

// RequireAuth authenticates every request through the validator. The
// credential is read from the Authorization header first, then from the named
// cookie. Rejections are uniform: the response never says whether the token
// was missing, malformed, expired, or mis-signed.
func RequireAuth(validator CredentialValidator, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := extractToken(r, cookieName)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing credential",
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			identity, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid credential",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyIdentity, *identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request, cookieName string) (string, bool) {
	const bearerPrefix = "Bearer "
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix); ok && after != "" {
		return after, true
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}
