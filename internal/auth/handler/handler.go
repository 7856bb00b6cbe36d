package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"guildgate/internal/account"
	"guildgate/internal/audit"
	"guildgate/internal/auth/service"
	"guildgate/internal/platform/middleware"
	"guildgate/internal/session"
	dErrors "guildgate/pkg/domain-errors"
	"guildgate/pkg/platform/sentinel"
)

// oauthStateKey is the session key holding the CSRF state between initiation
// and callback.
const oauthStateKey = "oauth_state"

// AuthService is the flow-controller seam the handler drives.
type AuthService interface {
	AuthorizeURL(state string) string
	Login(ctx context.Context, code string) (service.LoginResult, error)
}

// CookieConfig shapes the credential cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler owns the authentication endpoints and the protected /me endpoint.
type Handler struct {
	logger    *slog.Logger
	auth      AuthService
	accounts  account.Store
	sessions  *session.Manager
	audit     *audit.Publisher
	validator middleware.CredentialValidator
	cookie    CookieConfig
}

func New(
	auth AuthService,
	accounts account.Store,
	sessions *session.Manager,
	auditPublisher *audit.Publisher,
	validator middleware.CredentialValidator,
	cookie CookieConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:    logger,
		auth:      auth,
		accounts:  accounts,
		sessions:  sessions,
		audit:     auditPublisher,
		validator: validator,
		cookie:    cookie,
	}
}

// Register mounts the auth routes. /me sits behind the credential middleware;
// the flow endpoints are public.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auth/login", h.handleLogin)
	r.Get("/auth/callback", h.handleCallback)
	r.Delete("/auth/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.cookie.Name, h.logger))
		r.Get("/me", h.handleMe)
	})
}

// handleLogin starts the OAuth flow: mint the CSRF state, record it in the
// browser session, redirect to the provider. The redirect only happens after
// the state write succeeds; redirecting without a recorded state would make
// every callback verification fail.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sid, err := h.sessions.Ensure(w, r)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to establish session",
			"error", err, "request_id", middleware.GetRequestID(ctx))
		h.writeError(w, r, dErrors.New(dErrors.CodeInternal, "failed to prepare authentication flow"))
		return
	}

	state, err := generateState()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate state",
			"error", err, "request_id", middleware.GetRequestID(ctx))
		h.writeError(w, r, dErrors.New(dErrors.CodeInternal, "failed to prepare authentication flow"))
		return
	}

	if err := h.sessions.Store().Put(ctx, sid, oauthStateKey, state, h.sessions.TTL()); err != nil {
		h.logger.ErrorContext(ctx, "failed to record state in session",
			"error", err, "request_id", middleware.GetRequestID(ctx))
		h.writeError(w, r, dErrors.New(dErrors.CodeInternal, "failed to prepare authentication flow"))
		return
	}

	http.Redirect(w, r, h.auth.AuthorizeURL(state), http.StatusFound)
}

// handleCallback verifies the CSRF state, then drives the login flow. The
// stored state is removed before the comparison so it is single-use whatever
// the outcome: replaying the same callback fails the check.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	returnedState := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	stored, ok, err := h.consumeState(ctx, r)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read stored state",
			"error", err, "request_id", middleware.GetRequestID(ctx))
		h.writeError(w, r, dErrors.New(dErrors.CodeInternal, "failed to verify authentication flow"))
		return
	}
	if !ok || returnedState == "" || stored != returnedState {
		h.logger.WarnContext(ctx, "csrf state mismatch or missing",
			"state_present", returnedState != "",
			"request_id", middleware.GetRequestID(ctx),
		)
		h.emitAudit(ctx, r, audit.Event{Action: audit.ActionLoginDenied, Detail: string(dErrors.CodeCSRFMismatch)})
		h.writeError(w, r, dErrors.New(dErrors.CodeCSRFMismatch, "invalid or missing state parameter"))
		return
	}

	result, err := h.auth.Login(ctx, code)
	if err != nil {
		h.logger.ErrorContext(ctx, "login callback failed",
			"error", err, "request_id", middleware.GetRequestID(ctx))
		h.emitAudit(ctx, r, audit.Event{Action: audit.ActionLoginDenied, Detail: string(dErrors.CodeOf(err))})
		h.writeError(w, r, err)
		return
	}

	if result.Created {
		h.emitAudit(ctx, r, audit.Event{Action: audit.ActionAccountCreated, AccountID: result.Account.ID})
	}
	h.emitAudit(ctx, r, audit.Event{Action: audit.ActionLoginSuccess, AccountID: result.Account.ID})

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    result.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
	})
}

// handleLogout destroys the server-side session and expires the credential
// cookie. The credential itself stays valid until expiry; there is no
// revocation list.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sid, ok := h.sessions.SID(r); ok {
		if err := h.sessions.Store().Destroy(ctx, sid); err != nil {
			h.logger.WarnContext(ctx, "failed to destroy session",
				"error", err, "request_id", middleware.GetRequestID(ctx))
		}
	}
	h.sessions.Clear(w)

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.emitAudit(ctx, r, audit.Event{Action: audit.ActionLogout})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe resolves the authenticated identity to the full account record.
// This is deliberately outside the middleware: the middleware attaches only
// the identifier and never touches persistence.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.AccountID(ctx)

	acc, err := h.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			h.writeError(w, r, dErrors.New(dErrors.CodeNotFound, "account not found"))
			return
		}
		h.logger.ErrorContext(ctx, "account lookup failed",
			"account_id", accountID, "error", err,
			"request_id", middleware.GetRequestID(ctx))
		h.writeError(w, r, dErrors.New(dErrors.CodeInternal, "account lookup failed"))
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		ID:        acc.ID,
		Username:  acc.Username,
		Email:     acc.Email,
		DiscordID: acc.DiscordID,
		Avatar:    acc.DiscordAvatar,
		Locale:    acc.Locale,
		Roles:     acc.Roles,
	})
}

// consumeState reads the stored CSRF state and removes it, regardless of how
// the comparison will go. A store failure that is not a plain miss is
// returned as an error: an unreachable session backend must not look like a
// forged callback.
func (h *Handler) consumeState(ctx context.Context, r *http.Request) (string, bool, error) {
	sid, ok := h.sessions.SID(r)
	if !ok {
		return "", false, nil
	}
	stored, err := h.sessions.Store().Get(ctx, sid, oauthStateKey)
	if delErr := h.sessions.Store().Delete(ctx, sid, oauthStateKey); delErr != nil && !errors.Is(delErr, sentinel.ErrNotFound) {
		h.logger.WarnContext(ctx, "failed to remove consumed state",
			"error", delErr, "request_id", middleware.GetRequestID(ctx))
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if stored == "" {
		return "", false, nil
	}
	return stored, true, nil
}

func (h *Handler) emitAudit(ctx context.Context, r *http.Request, event audit.Event) {
	if h.audit == nil {
		return
	}
	event.RequestID = middleware.GetRequestID(ctx)
	event.Client = clientSummary(r.UserAgent())
	h.audit.Emit(ctx, event)
}

// generateState returns a 256-bit URL-safe CSRF token.
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// clientSummary condenses the user agent to "Browser version / OS" for audit
// events; raw UA strings are too noisy to keep.
func clientSummary(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	parts := []string{}
	if name != "" {
		if version != "" {
			name += " " + version
		}
		parts = append(parts, name)
	}
	if os := parsed.OS(); os != "" {
		parts = append(parts, os)
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, " / ")
}
