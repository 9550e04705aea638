package pgstore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToConnect        = errors.New("failed to open postgres connection")
	ErrFailedToParseConfig    = errors.New("failed to parse postgres config")
	ErrHealthcheckFailed      = errors.New("postgres healthcheck failed")
	ErrFailedToApplyMigration = errors.New("failed to apply migrations")
	ErrMalformedRecord        = errors.New("malformed record in postgres table")
)

// isRetryableTxError detects conflicts a serializable transaction recovers
// from by retrying: serialization failures (40001), deadlocks (40P01) and
// the unique violation (23505) two first-callers racing on the subscription
// insert can produce.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}
