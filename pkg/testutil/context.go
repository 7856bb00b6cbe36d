package testutil

import (
	"net/http"

	"guildgate/internal/platform/middleware"
)

// WithIdentity attaches an authenticated identity to the request context,
// simulating what the credential middleware does for a valid token.
func WithIdentity(req *http.Request, accountID string) *http.Request {
	ctx := middleware.WithIdentity(req.Context(), middleware.Identity{AccountID: accountID})
	return req.WithContext(ctx)
}
