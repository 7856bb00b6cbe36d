package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildgate/internal/platform/logger"
	dErrors "guildgate/pkg/domain-errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/auth/callback",
		APIBaseURL:   server.URL,
		AuthorizeURL: server.URL + "/oauth2/authorize",
	}, logger.NewNop())
}

func externalCode(t *testing.T, err error) dErrors.Error {
	t.Helper()
	de, ok := err.(dErrors.Error)
	require.True(t, ok, "expected a domain error, got %T", err)
	return de
}

func TestAuthorizeURL(t *testing.T) {
	c := New(Config{
		ClientID:    "client-id",
		RedirectURI: "https://app.example.com/auth/callback",
	}, logger.NewNop())

	got := c.AuthorizeURL("state-123")

	assert.Contains(t, got, "https://discord.com/api/oauth2/authorize?")
	assert.Contains(t, got, "client_id=client-id")
	assert.Contains(t, got, "response_type=code")
	assert.Contains(t, got, "state=state-123")
	assert.Contains(t, got, "redirect_uri=https%3A%2F%2Fapp.example.com%2Fauth%2Fcallback")
	assert.Contains(t, got, "scope=identify+email+guilds")
}

func TestExchangeCode_Success(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc", r.PostForm.Get("code"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":604800,"refresh_token":"ref","scope":"identify email guilds"}`))
	}))

	token, err := c.ExchangeCode(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "ref", token.RefreshToken)
}

func TestExchangeCode_EmptyCode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty code")
	}))

	_, err := c.ExchangeCode(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidInput, externalCode(t, err).Code)
}

func TestExchangeCode_ProviderErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
	}))

	_, err := c.ExchangeCode(context.Background(), "bad")
	require.Error(t, err)
	de := externalCode(t, err)
	assert.Equal(t, dErrors.CodeExternalService, de.Code)
	assert.Equal(t, ProviderName, de.Service)
	assert.Contains(t, de.Message, "invalid_grant")
	assert.Contains(t, de.Message, "Invalid authorization code")
}

func TestExchangeCode_ProviderMessageField(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
	}))

	_, err := c.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, externalCode(t, err).Message, "401: Unauthorized")
}

func TestExchangeCode_UnparseableErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>upstream exploded</html>"))
	}))

	_, err := c.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, externalCode(t, err).Message, "HTTP error 502")
}

func TestExchangeCode_UnparseableSuccessBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not-json"))
	}))

	_, err := c.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, externalCode(t, err).Message, "failed to parse token exchange response")
}

func TestExchangeCode_MissingAccessToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))

	_, err := c.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, externalCode(t, err).Message, "missing access_token")
}

func TestExchangeCode_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // connection refused from here on
	c := New(Config{APIBaseURL: server.URL}, logger.NewNop())

	_, err := c.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)
	de := externalCode(t, err)
	assert.Equal(t, dErrors.CodeExternalService, de.Code)
	assert.Contains(t, de.Message, "network error during token exchange")
}

func TestFetchProfile_Success(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/@me", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"42","username":"ann","global_name":"Ann","avatar":"a1b2","email":"ann@example.com","locale":"en-US"}`))
	}))

	profile, err := c.FetchProfile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
	assert.Equal(t, "ann", profile.Username)
	assert.Equal(t, "a1b2", profile.Avatar)
	assert.Equal(t, "en-US", profile.Locale)
}

func TestFetchProfile_MissingRequiredFields(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"email":"ann@example.com"}`))
	}))

	_, err := c.FetchProfile(context.Background(), "tok")
	require.Error(t, err)
	assert.Contains(t, externalCode(t, err).Message, "missing id or username")
}
