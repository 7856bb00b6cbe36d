// Package service orchestrates the OAuth login flow: code exchange, profile
// fetch, account reconciliation, and credential minting. CSRF state handling
// stays in the HTTP handler, which owns the browser session.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"guildgate/internal/account"
	"guildgate/internal/discord"
	jwttoken "guildgate/internal/jwt_token"
	"guildgate/internal/platform/metrics"
	dErrors "guildgate/pkg/domain-errors"
	"guildgate/pkg/platform/sentinel"
)

// Provider is the outbound OAuth client seam. The discord client implements
// it; tests substitute fakes.
type Provider interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (discord.TokenResponse, error)
	FetchProfile(ctx context.Context, accessToken string) (discord.UserProfile, error)
}

// LoginResult is what a successful callback produces.
type LoginResult struct {
	Account     account.Account
	AccessToken string
	Created     bool
}

// Service implements the login flow against a provider, an account store, and
// the token codec.
type Service struct {
	provider Provider
	accounts account.Store
	tokens   *jwttoken.Service
	lifetime time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func New(
	provider Provider,
	accounts account.Store,
	tokens *jwttoken.Service,
	lifetime time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Service{
		provider: provider,
		accounts: accounts,
		tokens:   tokens,
		lifetime: lifetime,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("guildgate/auth"),
		now:      time.Now,
	}
}

// AuthorizeURL builds the provider redirect target carrying the CSRF state.
func (s *Service) AuthorizeURL(state string) string {
	return s.provider.AuthorizeURL(state)
}

// Login runs the post-CSRF half of the callback: exchange the code, fetch the
// profile, reconcile the account, mint the credential. The two provider calls
// are sequential and single-attempt; their failures surface as categorized
// external-service errors.
func (s *Service) Login(ctx context.Context, code string) (LoginResult, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "auth.login")
	defer span.End()

	token, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.IncProviderFailure("exchange")
		s.metrics.IncLoginFailure(string(dErrors.CodeOf(err)))
		return LoginResult{}, err
	}

	profile, err := s.provider.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		s.metrics.IncProviderFailure("profile")
		s.metrics.IncLoginFailure(string(dErrors.CodeOf(err)))
		return LoginResult{}, err
	}
	s.logger.InfoContext(ctx, "fetched provider profile", "discord_id", profile.ID)

	acc, created, err := s.reconcile(ctx, profile)
	if err != nil {
		s.metrics.IncLoginFailure(string(dErrors.CodeOf(err)))
		return LoginResult{}, err
	}

	credential, err := s.tokens.Mint(acc.ID, s.now(), s.lifetime)
	if err != nil {
		s.metrics.IncLoginFailure(string(dErrors.CodeInternal))
		return LoginResult{}, err
	}

	if created {
		s.metrics.IncAccountsCreated()
	}
	s.metrics.ObserveLogin(start)
	s.logger.InfoContext(ctx, "login complete", "account_id", acc.ID, "created", created)

	return LoginResult{Account: acc, AccessToken: credential, Created: created}, nil
}

// reconcile maps the provider profile onto a local account: find by discord
// ID, refresh drifted profile fields, or create a fresh account with the
// default role set. The bool reports whether an account was created.
func (s *Service) reconcile(ctx context.Context, profile discord.UserProfile) (account.Account, bool, error) {
	ctx, span := s.tracer.Start(ctx, "auth.reconcile")
	defer span.End()

	existing, err := s.accounts.FindByDiscordID(ctx, profile.ID)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, profile), false, nil

	case errors.Is(err, sentinel.ErrNotFound):
		acc := account.Account{
			ID:            uuid.NewString(),
			Username:      profile.Username,
			Email:         profile.Email,
			DiscordID:     profile.ID,
			DiscordAvatar: profile.Avatar,
			Locale:        profile.Locale,
			Roles:         account.DefaultRoles(),
		}
		if err := s.accounts.Create(ctx, acc); err != nil {
			// Includes losing the create race to a concurrent first login:
			// the store's uniqueness constraint on discord_id decides, and a
			// rejected create fails this callback.
			s.logger.ErrorContext(ctx, "failed to create account",
				"discord_id", profile.ID, "error", err)
			return account.Account{}, false, dErrors.New(dErrors.CodeInternal, "failed to create account")
		}
		s.logger.InfoContext(ctx, "account created", "account_id", acc.ID, "discord_id", profile.ID)
		return acc, true, nil

	default:
		s.logger.ErrorContext(ctx, "account lookup failed",
			"discord_id", profile.ID, "error", err)
		return account.Account{}, false, dErrors.New(dErrors.CodeInternal, "account lookup failed")
	}
}

// refresh updates mutable profile fields that drifted upstream. An update
// failure is non-fatal: the user still authenticates, with stale local data.
// Roles are never touched here.
func (s *Service) refresh(ctx context.Context, existing account.Account, profile discord.UserProfile) account.Account {
	updated := existing
	changed := false
	if updated.Username != profile.Username {
		updated.Username = profile.Username
		changed = true
	}
	if updated.DiscordAvatar != profile.Avatar {
		updated.DiscordAvatar = profile.Avatar
		changed = true
	}
	if profile.Locale != "" && updated.Locale != profile.Locale {
		updated.Locale = profile.Locale
		changed = true
	}
	if !changed {
		return existing
	}

	if err := s.accounts.Update(ctx, updated); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh account profile, continuing with stale data",
			"account_id", existing.ID, "error", err)
		return existing
	}
	return updated
}
