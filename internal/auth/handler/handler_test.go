package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildgate/internal/account"
	accountstore "guildgate/internal/account/store"
	"guildgate/internal/audit"
	"guildgate/internal/auth/service"
	"guildgate/internal/discord"
	jwttoken "guildgate/internal/jwt_token"
	"guildgate/internal/platform/logger"
	"guildgate/internal/session"
	"guildgate/pkg/platform/sentinel"
	"guildgate/pkg/testutil"
)

const credentialCookie = "guildgate_token"

// providerServer fakes the Discord OAuth and REST endpoints.
type providerServer struct {
	*httptest.Server
	exchangeHits atomic.Int64
	profileHits  atomic.Int64
	profileJSON  atomic.Value
}

func newProviderServer(t *testing.T) *providerServer {
	t.Helper()
	p := &providerServer{}
	p.setProfile(`{"id":"42","username":"ann","avatar":"a1b2","email":"ann@example.com","locale":"en-US"}`)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		p.exchangeHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":604800,"refresh_token":"ref","scope":"identify email guilds"}`))
	})
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		p.profileHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(p.profileJSON.Load().(string)))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *providerServer) setProfile(body string) {
	p.profileJSON.Store(body)
}

// countingAccountStore observes persistence access from the HTTP surface.
type countingAccountStore struct {
	account.Store
	findByIDCalls atomic.Int64
}

func (c *countingAccountStore) FindByID(ctx context.Context, id string) (account.Account, error) {
	c.findByIDCalls.Add(1)
	return c.Store.FindByID(ctx, id)
}

// faultySessionStore wraps a real store with switchable failures, standing in
// for an unreachable session backend.
type faultySessionStore struct {
	session.Store
	putErr error
	getErr error
}

func (f *faultySessionStore) Put(ctx context.Context, sid, key, value string, ttl time.Duration) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, sid, key, value, ttl)
}

func (f *faultySessionStore) Get(ctx context.Context, sid, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	return f.Store.Get(ctx, sid, key)
}

type env struct {
	router       chi.Router
	handler      *Handler
	provider     *providerServer
	accounts     *countingAccountStore
	sessionStore session.Store
	tokens       *jwttoken.Service
	publisher    *audit.Publisher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithSessions(t, session.NewMemory())
}

func newEnvWithSessions(t *testing.T, sessionStore session.Store) *env {
	t.Helper()
	log := logger.NewNop()
	provider := newProviderServer(t)

	client := discord.New(discord.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/auth/callback",
		APIBaseURL:   provider.URL,
		AuthorizeURL: provider.URL + "/oauth2/authorize",
	}, log)

	tokens := jwttoken.NewService("test-signing-key", log)
	accounts := &countingAccountStore{Store: accountstore.NewMemory()}
	svc := service.New(client, accounts, tokens, time.Hour, nil, log)

	sessions := session.NewManager(sessionStore, 10*time.Minute, false)
	publisher := audit.NewPublisher(16, log)

	h := New(svc, accounts, sessions, publisher,
		jwttoken.NewServiceAdapter(tokens),
		CookieConfig{Name: credentialCookie},
		log,
	)

	router := chi.NewRouter()
	h.Register(router)

	return &env{
		router:       router,
		handler:      h,
		provider:     provider,
		accounts:     accounts,
		sessionStore: sessionStore,
		tokens:       tokens,
		publisher:    publisher,
	}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// startLogin performs the initiation request, returning the session cookie
// and the state parameter embedded in the provider redirect.
func (e *env) startLogin(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rr := e.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	cookie := testutil.Cookie(rr, session.CookieName)
	require.NotNil(t, cookie)
	return cookie, state
}

func (e *env) callback(t *testing.T, sessionCookie *http.Cookie, code, state string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code="+code+"&state="+url.QueryEscape(state), nil)
	if sessionCookie != nil {
		req.AddCookie(sessionCookie)
	}
	return e.do(req)
}

func drainAudit(e *env) []audit.Event {
	var events []audit.Event
	for {
		select {
		case event := <-e.publisher.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestLogin_RedirectsAndStoresState(t *testing.T) {
	e := newEnv(t)

	rr := e.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/authorize", location.Path)
	assert.Equal(t, "client-id", location.Query().Get("client_id"))
	assert.Equal(t, "code", location.Query().Get("response_type"))

	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	sessionCookie := testutil.Cookie(rr, session.CookieName)
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)

	stored, err := e.sessionStore.Get(context.Background(), sessionCookie.Value, "oauth_state")
	require.NoError(t, err)
	assert.Equal(t, state, stored)
}

func TestLogin_SessionWriteFailureReturnsErrorWithoutRedirect(t *testing.T) {
	e := newEnvWithSessions(t, &faultySessionStore{
		Store:  session.NewMemory(),
		putErr: sentinel.ErrUnavailable,
	})

	rr := e.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))

	var resp errorResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "internal", resp.Error)
}

func TestCallback_FirstLoginCreatesAccount(t *testing.T) {
	e := newEnv(t)
	sessionCookie, state := e.startLogin(t)

	rr := e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp loginResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "Bearer", resp.TokenType)
	require.NotEmpty(t, resp.AccessToken)

	// The account was created from the provider profile.
	acc, err := e.accounts.FindByDiscordID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "ann", acc.Username)
	assert.Equal(t, account.DefaultRoles(), acc.Roles)

	// The credential subject is the new account's identifier.
	subject, err := e.tokens.Validate(resp.AccessToken, time.Now())
	require.NoError(t, err)
	assert.Equal(t, acc.ID, subject)

	// Credential also delivered as an http-only cookie.
	credCookie := testutil.Cookie(rr, credentialCookie)
	require.NotNil(t, credCookie)
	assert.Equal(t, resp.AccessToken, credCookie.Value)
	assert.True(t, credCookie.HttpOnly)
	assert.Equal(t, "/", credCookie.Path)

	actions := make([]audit.Action, 0)
	for _, event := range drainAudit(e) {
		actions = append(actions, event.Action)
	}
	assert.Contains(t, actions, audit.ActionAccountCreated)
	assert.Contains(t, actions, audit.ActionLoginSuccess)
}

func TestCallback_SecondLoginUpdatesProfile(t *testing.T) {
	e := newEnv(t)

	sessionCookie, state := e.startLogin(t)
	rr := e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusOK, rr.Code)

	first, err := e.accounts.FindByDiscordID(context.Background(), "42")
	require.NoError(t, err)

	e.provider.setProfile(`{"id":"42","username":"annette","avatar":"a1b2","email":"ann@example.com","locale":"en-US"}`)

	sessionCookie, state = e.startLogin(t)
	rr = e.callback(t, sessionCookie, "def", state)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp loginResponse
	testutil.DecodeJSON(t, rr, &resp)
	subject, err := e.tokens.Validate(resp.AccessToken, time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, subject)

	second, err := e.accounts.FindByDiscordID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "annette", second.Username)
	assert.Equal(t, first.Roles, second.Roles)
}

func TestCallback_StateMismatchRejectsWithoutProviderCall(t *testing.T) {
	e := newEnv(t)
	sessionCookie, _ := e.startLogin(t)

	rr := e.callback(t, sessionCookie, "abc", "forged-state")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp errorResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "unauthorized", resp.Error)

	assert.Zero(t, e.provider.exchangeHits.Load())
	assert.Zero(t, e.provider.profileHits.Load())
}

func TestCallback_StateIsSingleUse(t *testing.T) {
	e := newEnv(t)
	sessionCookie, state := e.startLogin(t)

	rr := e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusOK, rr.Code)

	// Replaying the identical callback fails: the state was consumed.
	rr = e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, int64(1), e.provider.exchangeHits.Load())
}

func TestCallback_ConsumesStateEvenOnMismatch(t *testing.T) {
	e := newEnv(t)
	sessionCookie, state := e.startLogin(t)

	rr := e.callback(t, sessionCookie, "abc", "forged-state")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// The genuine state no longer works either: removal is unconditional.
	rr = e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, e.provider.exchangeHits.Load())
}

func TestCallback_SessionReadFailureIsInternalNotUnauthorized(t *testing.T) {
	store := &faultySessionStore{Store: session.NewMemory()}
	e := newEnvWithSessions(t, store)
	sessionCookie, state := e.startLogin(t)

	// The state exists; only the read path is down.
	store.getErr = sentinel.ErrUnavailable

	rr := e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp errorResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "internal", resp.Error)

	assert.Zero(t, e.provider.exchangeHits.Load())
}

func TestCallback_NoSessionRejected(t *testing.T) {
	e := newEnv(t)

	rr := e.callback(t, nil, "abc", "some-state")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, e.provider.exchangeHits.Load())
}

func TestCallback_ProviderErrorIsSanitized(t *testing.T) {
	e := newEnv(t)
	e.provider.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
	})

	sessionCookie, state := e.startLogin(t)
	rr := e.callback(t, sessionCookie, "bad", state)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var resp errorResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "external_service", resp.Error)
	// Raw provider detail never reaches the caller.
	assert.NotContains(t, rr.Body.String(), "invalid_grant")
}

func TestLogout_ClearsCookiesAndSession(t *testing.T) {
	e := newEnv(t)
	sessionCookie, state := e.startLogin(t)
	rr := e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodDelete, "/auth/logout", nil)
	req.AddCookie(sessionCookie)
	rr = e.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	credCookie := testutil.Cookie(rr, credentialCookie)
	require.NotNil(t, credCookie)
	assert.Empty(t, credCookie.Value)
	assert.Less(t, credCookie.MaxAge, 0)

	sessCookie := testutil.Cookie(rr, session.CookieName)
	require.NotNil(t, sessCookie)
	assert.Less(t, sessCookie.MaxAge, 0)
}

func TestMe_WithBearerAndCookie(t *testing.T) {
	e := newEnv(t)
	sessionCookie, state := e.startLogin(t)
	rr := e.callback(t, sessionCookie, "abc", state)
	require.Equal(t, http.StatusOK, rr.Code)

	var login loginResponse
	testutil.DecodeJSON(t, rr, &login)

	// Authorization header.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rr2 := e.do(req)
	require.Equal(t, http.StatusOK, rr2.Code)

	var me accountResponse
	testutil.DecodeJSON(t, rr2, &me)
	assert.Equal(t, "ann", me.Username)
	assert.Equal(t, "42", me.DiscordID)

	// Credential cookie works too.
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: credentialCookie, Value: login.AccessToken})
	rr3 := e.do(req)
	require.Equal(t, http.StatusOK, rr3.Code)
}

func TestMe_UnauthenticatedTouchesNoPersistence(t *testing.T) {
	e := newEnv(t)

	rr := e.do(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, e.accounts.findByIDCalls.Load())

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rr = e.do(req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, e.accounts.findByIDCalls.Load())
}

func TestMe_DeletedAccountNotFound(t *testing.T) {
	e := newEnv(t)

	req := testutil.WithIdentity(httptest.NewRequest(http.MethodGet, "/me", nil), uuid.NewString())
	rr := httptest.NewRecorder()
	e.handler.handleMe(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp errorResponse
	testutil.DecodeJSON(t, rr, &resp)
	assert.Equal(t, "not_found", resp.Error)
}
