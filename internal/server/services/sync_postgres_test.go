package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/logging"
	bookmarksrepo "github.com/dmitrijs2005/marksync/internal/server/repositories/bookmarks"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/repomanager"
)

const (
	lockQuery        = `SELECT pg_advisory_xact_lock($1)`
	getBookmarkQuery = `(?s)SELECT\s+u\.url.*FROM\s+bookmarks\s+b.*AND\s+b\.url_uuid\s*=\s*\$2$`
	getTagsQuery     = `(?s)SELECT\s+bt\.url_uuid.*FROM\s+bookmark_tags\s+bt.*AND\s+bt\.url_uuid\s*=\s*\$2$`
)

var (
	bookmarkColumns = []string{"url", "title", "description", "created", "updated", "unread", "deleted"}
	tagColumns      = []string{"url_uuid", "tag_name", "updated", "deleted"}
)

// newPostgresSyncService wires the service to the real Postgres repositories
// over sqlmock, which checks statement order.
func newPostgresSyncService(t *testing.T) (*SyncService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSyncService(db, repomanager.NewPostgresRepositoryManager(), &fakeNotifier{}, logging.Nop()), mock
}

func expectLockAndRead(mock sqlmock.Sqlmock, in bookmark.Bookmark) *sqlmock.ExpectedQuery {
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).
		WithArgs(bookmarksrepo.LockKey(owner, in.ID())).
		WillReturnResult(sqlmock.NewResult(0, 0))
	return mock.ExpectQuery(getBookmarkQuery).WithArgs(owner, in.ID())
}

func expectWrite(mock sqlmock.Sqlmock, tags int) {
	mock.ExpectExec(`INSERT INTO urls`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO bookmarks`).WillReturnResult(sqlmock.NewResult(0, 1))
	for range tags {
		mock.ExpectExec(`INSERT INTO bookmark_tags`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
}

func TestReconcile_LocksBeforeReadInsideTransaction(t *testing.T) {
	svc, mock := newPostgresSyncService(t)
	in := bm("https://example.com/", "Hello", t1, "go")

	mock.ExpectBegin()
	expectLockAndRead(mock, in).WillReturnRows(sqlmock.NewRows(bookmarkColumns))
	expectWrite(mock, 1)
	mock.ExpectCommit()

	res, err := svc.Reconcile(context.Background(), owner, []bookmark.Bookmark{in})
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_UnchangedReadsUnderLockAndWritesNothing(t *testing.T) {
	svc, mock := newPostgresSyncService(t)
	in := bm("https://example.com/", "Hello", t1, "go")

	mock.ExpectBegin()
	expectLockAndRead(mock, in).WillReturnRows(sqlmock.NewRows(bookmarkColumns).
		AddRow(in.URL.String(), in.Title, "", t0, t1, false, false))
	mock.ExpectQuery(getTagsQuery).WithArgs(owner, in.ID()).
		WillReturnRows(sqlmock.NewRows(tagColumns).AddRow(in.ID().String(), "go", t0, false))
	mock.ExpectCommit()

	res, err := svc.Reconcile(context.Background(), owner, []bookmark.Bookmark{in})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_RetryTakesLockAgain(t *testing.T) {
	svc, mock := newPostgresSyncService(t)
	in := bm("https://example.com/", "Hello", t1)

	mock.ExpectBegin()
	expectLockAndRead(mock, in).WillReturnRows(sqlmock.NewRows(bookmarkColumns))
	mock.ExpectExec(`INSERT INTO urls`).WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	expectLockAndRead(mock, in).WillReturnRows(sqlmock.NewRows(bookmarkColumns))
	expectWrite(mock, 0)
	mock.ExpectCommit()

	res, err := svc.Reconcile(context.Background(), owner, []bookmark.Bookmark{in})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_LockFailureRollsBackWithoutReading(t *testing.T) {
	svc, mock := newPostgresSyncService(t)
	in := bm("https://example.com/", "Hello", t1)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(lockQuery)).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	res, err := svc.Reconcile(context.Background(), owner, []bookmark.Bookmark{in})
	require.ErrorContains(t, err, "conn reset")
	assert.Zero(t, res.Updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_EachBookmarkHasItsOwnLockedTransaction(t *testing.T) {
	svc, mock := newPostgresSyncService(t)
	a := bm("https://example.com/a", "A", t1)
	b := bm("https://example.com/b", "B", t1)

	for _, in := range []bookmark.Bookmark{a, b} {
		mock.ExpectBegin()
		expectLockAndRead(mock, in).WillReturnRows(sqlmock.NewRows(bookmarkColumns))
		expectWrite(mock, 0)
		mock.ExpectCommit()
	}

	res, err := svc.Reconcile(context.Background(), owner, []bookmark.Bookmark{a, b})
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
