package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/samber/oops"

	"pwanotify/internal/common"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const pqUniqueViolation = "23505"

var errNoRows = sql.ErrNoRows

// dbError maps driver errors onto the shared kinds: no rows becomes
// ErrNotFound, a unique violation becomes ErrConflict, anything else is
// wrapped with the operation name.
func dbError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return oops.Code("NOT_FOUND").With("op", op).Wrap(common.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return oops.Code("CONFLICT").
			With("op", op).
			With("constraint", pqErr.Constraint).
			Wrap(errors.Join(common.ErrConflict, err))
	}
	return oops.Code("DB_ERROR").With("op", op).Wrapf(err, "%s", op)
}

// expectAffected turns a zero-row update or delete into ErrNotFound.
func expectAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(op, err)
	}
	if n == 0 {
		return oops.Code("NOT_FOUND").With("op", op).Wrap(common.ErrNotFound)
	}
	return nil
}
