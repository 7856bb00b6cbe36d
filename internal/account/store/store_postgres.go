package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"guildgate/internal/account"
	"guildgate/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts in PostgreSQL. The unique index on
// discord_id arbitrates concurrent first logins for the same Discord user.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Schema is applied by deploy tooling; kept here so the store and its table
// evolve together.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id             UUID PRIMARY KEY,
    username       TEXT NOT NULL,
    email          TEXT,
    discord_id     TEXT,
    discord_avatar TEXT,
    locale         TEXT,
    roles          TEXT[] NOT NULL DEFAULT '{}'
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_discord_id_idx
    ON accounts (discord_id) WHERE discord_id IS NOT NULL;
`

func (s *PostgresStore) Create(ctx context.Context, acc account.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, username, email, discord_id, discord_avatar, locale, roles)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)`,
		acc.ID, acc.Username, acc.Email, acc.DiscordID, acc.DiscordAvatar, acc.Locale, acc.Roles,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, acc account.Account) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET username = $2,
		    email = NULLIF($3, ''),
		    discord_id = NULLIF($4, ''),
		    discord_avatar = NULLIF($5, ''),
		    locale = NULLIF($6, ''),
		    roles = $7
		WHERE id = $1`,
		acc.ID, acc.Username, acc.Email, acc.DiscordID, acc.DiscordAvatar, acc.Locale, acc.Roles,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (account.Account, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) FindByDiscordID(ctx context.Context, discordID string) (account.Account, error) {
	return s.findOne(ctx, `WHERE discord_id = $1`, discordID)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (account.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, username, COALESCE(email, ''), COALESCE(discord_id, ''),
		       COALESCE(discord_avatar, ''), COALESCE(locale, ''), roles
		FROM accounts `+where, arg)

	var acc account.Account
	err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.DiscordID,
		&acc.DiscordAvatar, &acc.Locale, &acc.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, sentinel.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("find account: %w", err)
	}
	return acc, nil
}
