package account

import (
	"context"
)

// Store is interface-driven to keep the reconciliation logic testable and to
// allow swapping the in-memory and postgres implementations without rewiring
// business code. Implementations return pkg/platform/sentinel errors:
// ErrNotFound for missing records, ErrConflict when the discord_id uniqueness
// constraint rejects a create.
type Store interface {
	Create(ctx context.Context, acc Account) error
	Update(ctx context.Context, acc Account) error
	FindByID(ctx context.Context, id string) (Account, error)
	FindByDiscordID(ctx context.Context, discordID string) (Account, error)
}
