package dbx

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// retryBackoff is the pause before the given retry (1-based).
var retryBackoff = func(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * 10 * time.Millisecond
}

// IsRetryable reports whether err is a Postgres serialization failure or
// deadlock, after which the whole transaction may simply be run again.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// WithTxRetry runs WithTx up to attempts times while it fails with a
// retryable error. fn must be safe to run again from the start.
func WithTxRetry(ctx context.Context, db *sql.DB, opts *sql.TxOptions, attempts int, fn func(ctx context.Context, tx DBTX) error) error {
	for attempt := 1; ; attempt++ {
		err := WithTx(ctx, db, opts, fn)
		if err == nil || attempt >= attempts || !IsRetryable(err) {
			return err
		}

		t := time.NewTimer(retryBackoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
}
