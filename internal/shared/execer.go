package shared

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the write surface shared stores need; *pgxpool.Pool and pgx.Tx
// both satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}
