//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"guildgate/internal/account"
	"guildgate/internal/account/store"
	"guildgate/pkg/platform/sentinel"
	"guildgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "accounts")
	s.Require().NoError(err)
}

func newTestAccount(discordID string) account.Account {
	return account.Account{
		ID:            uuid.NewString(),
		Username:      "ann",
		Email:         "ann@example.com",
		DiscordID:     discordID,
		DiscordAvatar: "a1b2",
		Locale:        "en-US",
		Roles:         account.DefaultRoles(),
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	acc := newTestAccount("42")

	s.Require().NoError(s.store.Create(ctx, acc))

	byID, err := s.store.FindByID(ctx, acc.ID)
	s.Require().NoError(err)
	s.Equal(acc, byID)

	byDiscord, err := s.store.FindByDiscordID(ctx, "42")
	s.Require().NoError(err)
	s.Equal(acc.ID, byDiscord.ID)
}

func (s *PostgresStoreSuite) TestFindMissing() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByDiscordID(ctx, "999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()
	acc := newTestAccount("42")
	s.Require().NoError(s.store.Create(ctx, acc))

	acc.Username = "annette"
	acc.DiscordAvatar = "c3d4"
	s.Require().NoError(s.store.Update(ctx, acc))

	got, err := s.store.FindByID(ctx, acc.ID)
	s.Require().NoError(err)
	s.Equal("annette", got.Username)
	s.Equal("c3d4", got.DiscordAvatar)
	s.Equal(account.DefaultRoles(), got.Roles)
}

func (s *PostgresStoreSuite) TestUpdateMissing() {
	err := s.store.Update(context.Background(), newTestAccount("42"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestEmptyOptionalFieldsRoundTrip() {
	ctx := context.Background()
	acc := account.Account{
		ID:        uuid.NewString(),
		Username:  "bare",
		DiscordID: "77",
		Roles:     account.DefaultRoles(),
	}
	s.Require().NoError(s.store.Create(ctx, acc))

	got, err := s.store.FindByID(ctx, acc.ID)
	s.Require().NoError(err)
	s.Empty(got.Email)
	s.Empty(got.DiscordAvatar)
	s.Empty(got.Locale)
}

// TestConcurrentCreateSameDiscordID verifies the partial unique index admits
// exactly one row per provider identity under concurrency.
func (s *PostgresStoreSuite) TestConcurrentCreateSameDiscordID() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, conflictCount, otherErrors atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newTestAccount("42"))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			default:
				otherErrors.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
	s.Zero(otherErrors.Load())
}
