package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:dbx_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	return n
}

func noBackoff(t *testing.T) {
	t.Helper()
	orig := retryBackoff
	retryBackoff = func(int) time.Duration { return 0 }
	t.Cleanup(func() { retryBackoff = orig })
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(fmt.Errorf("db error: %w", &pgconn.PgError{Code: "40P01"})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestWithTxRetry_RetriesSerializationFailure(t *testing.T) {
	noBackoff(t)
	db := setupDB(t)

	calls := 0
	err := WithTxRetry(context.Background(), db, nil, 3, func(ctx context.Context, tx DBTX) error {
		calls++
		if _, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('try')`); err != nil {
			return err
		}
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, countRows(t, db), "first attempt must have rolled back")
}

func TestWithTxRetry_GivesUp(t *testing.T) {
	noBackoff(t)
	db := setupDB(t)

	calls := 0
	err := WithTxRetry(context.Background(), db, nil, 3, func(ctx context.Context, tx DBTX) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})

	assert.True(t, IsRetryable(err))
	assert.Equal(t, 3, calls)
}

func TestWithTxRetry_DoesNotRetryOtherErrors(t *testing.T) {
	noBackoff(t)
	db := setupDB(t)

	boom := errors.New("boom")
	calls := 0
	err := WithTxRetry(context.Background(), db, nil, 5, func(ctx context.Context, tx DBTX) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithTxRetry_StopsOnCancel(t *testing.T) {
	orig := retryBackoff
	retryBackoff = func(int) time.Duration { return time.Hour }
	t.Cleanup(func() { retryBackoff = orig })
	db := setupDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	err := WithTxRetry(ctx, db, nil, 3, func(ctx context.Context, tx DBTX) error {
		cancel()
		return &pgconn.PgError{Code: "40001"}
	})

	assert.ErrorIs(t, err, context.Canceled)
}
