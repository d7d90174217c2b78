package shared

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Identity resolves user ids or emails to display names for audit
// readability. Lookups are best-effort and never fail the caller.
type Identity struct {
	pool *pgxpool.Pool
}

// NewIdentity returns a new Identity lookup.
func NewIdentity(pool *pgxpool.Pool) *Identity {
	return &Identity{pool: pool}
}

// DisplayName returns a human readable name for the id or email, falling
// back to "Unknown User" on miss and "System User" for empty input.
func (i *Identity) DisplayName(ctx context.Context, userIDOrEmail string) string {
	if userIDOrEmail == "" {
		return "System User"
	}
	if i == nil || i.pool == nil {
		return "Unknown User"
	}
	var name string
	err := i.pool.QueryRow(ctx, `SELECT display_name FROM users WHERE id::text=$1 OR email=$1`, userIDOrEmail).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "Unknown User"
		}
		return "Unknown User"
	}
	return name
}
