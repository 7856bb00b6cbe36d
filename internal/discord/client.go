// Package discord performs the two outbound calls of the OAuth login flow:
// exchanging the authorization code for an access token and fetching the user
// profile. Calls are single-attempt; retry policy belongs to callers.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "guildgate/pkg/domain-errors"
)

// ProviderName tags external-service failures from this client.
const ProviderName = "discord"

const (
	defaultAuthorizeURL = "https://discord.com/api/oauth2/authorize"
	defaultAPIBaseURL   = "https://discord.com/api/v10"
	defaultTimeout      = 10 * time.Second

	// maxErrorBody bounds how much of a provider error body we read back.
	maxErrorBody = 64 << 10
)

// Scopes requested at authorization. identify and email feed reconciliation;
// guilds backs the dashboard's guild listing.
const Scopes = "identify email guilds"

// Config holds the OAuth application credentials. AuthorizeURL and APIBaseURL
// are overridable so tests can point the client at httptest servers.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
	AuthorizeURL string
	APIBaseURL   string
}

// Client talks to the Discord OAuth and REST endpoints.
type Client struct {
	http         *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	authorizeURL string
	apiBaseURL   string
	logger       *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	authorizeURL := cfg.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = defaultAuthorizeURL
	}
	apiBaseURL := cfg.APIBaseURL
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		authorizeURL: authorizeURL,
		apiBaseURL:   apiBaseURL,
		logger:       logger,
	}
}

// AuthorizeURL builds the provider authorization URL carrying the CSRF state.
func (c *Client) AuthorizeURL(state string) string {
	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("redirect_uri", c.redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", Scopes)
	query.Set("state", state)
	return c.authorizeURL + "?" + query.Encode()
}

// ExchangeCode swaps the authorization code for a provider access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	if code == "" {
		return TokenResponse{}, dErrors.New(dErrors.CodeInvalidInput, "authorization code is required")
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, dErrors.External(ProviderName, fmt.Sprintf("build token request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token TokenResponse
	if err := c.do(req, "token exchange", &token); err != nil {
		return TokenResponse{}, err
	}
	if token.AccessToken == "" {
		return TokenResponse{}, dErrors.External(ProviderName, "token exchange: response missing access_token")
	}
	return token, nil
}

// FetchProfile retrieves the authenticated user's identity snapshot.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/users/@me", nil)
	if err != nil {
		return UserProfile{}, dErrors.External(ProviderName, fmt.Sprintf("build profile request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var profile UserProfile
	if err := c.do(req, "profile fetch", &profile); err != nil {
		return UserProfile{}, err
	}
	if profile.ID == "" || profile.Username == "" {
		return UserProfile{}, dErrors.External(ProviderName, "profile fetch: response missing id or username")
	}
	return profile, nil
}

// do performs one request and decodes the 2xx body into target, normalizing
// the three failure shapes: transport error, non-2xx status with a
// best-effort-parsed provider error, and unparseable success body.
func (c *Client) do(req *http.Request, operation string, target any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("provider request failed", "operation", operation, "error", err)
		return dErrors.External(ProviderName, fmt.Sprintf("network error during %s: %v", operation, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return dErrors.External(ProviderName, fmt.Sprintf("reading %s response: %v", operation, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fallback := fmt.Sprintf("HTTP error %d", resp.StatusCode)
		var provider apiError
		_ = json.Unmarshal(body, &provider)
		detail := provider.detail(fallback)
		c.logger.Warn("provider returned error",
			"operation", operation,
			"status", resp.StatusCode,
			"detail", detail,
		)
		return dErrors.External(ProviderName, fmt.Sprintf("%s failed: %s", operation, detail))
	}

	if err := json.Unmarshal(body, target); err != nil {
		c.logger.Error("provider response did not parse", "operation", operation, "error", err)
		return dErrors.External(ProviderName, fmt.Sprintf("failed to parse %s response: %v", operation, err))
	}
	return nil
}
