package bookmarks

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/client/migrations"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

var (
	t0 = time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	return db
}

func bm(rawURL, title string, updated time.Time, tags ...string) bookmark.Bookmark {
	b := bookmark.Bookmark{
		URL:     urlid.MustCanonicalize(rawURL),
		Title:   title,
		Created: t0,
		Updated: updated,
		Tags:    bookmark.TagTriples{},
	}
	for _, tag := range tags {
		b.Tags = b.Tags.Tag(tag, t0)
	}
	return b
}

func TestPutAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	b := bm("https://example.com/a", "A", t1, "go", "news")
	b.Description = "desc"
	b.Unread = true
	require.NoError(t, r.Put(ctx, b, true))

	got, err := r.Get(ctx, b.ID())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, b.Equal(*got), "got %v", got)
	assert.Equal(t, []string{"go", "news"}, got.CurrentTags())
}

func TestGet_NotExists_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.Get(context.Background(), urlid.MustCanonicalize("https://example.com/none").ID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPut_UpsertReplacesRecord(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, bm("https://example.com/a", "Old", t0), true))
	require.NoError(t, r.Put(ctx, bm("https://example.com/a", "New", t1), false))

	all, err := r.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "New", all[0].Title)

	n, err := r.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList_OrderAndDeleted(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	older := bm("https://example.com/older", "Older", t0)
	newer := bm("https://example.com/newer", "Newer", t2)
	gone := bm("https://example.com/gone", "Gone", t1)
	gone.Deleted = true
	for _, b := range []bookmark.Bookmark{older, newer, gone} {
		require.NoError(t, r.Put(ctx, b, false))
	}

	live, err := r.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "Newer", live[0].Title)
	assert.Equal(t, "Older", live[1].Title)

	all, err := r.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Gone", all[1].Title)
}

func TestPendingAndMarkSynced(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	a := bm("https://example.com/a", "A", t1)
	b := bm("https://example.com/b", "B", t0)
	c := bm("https://example.com/c", "C", t2)
	require.NoError(t, r.Put(ctx, a, true))
	require.NoError(t, r.Put(ctx, b, true))
	require.NoError(t, r.Put(ctx, c, false))

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "B", pending[0].Title)
	assert.Equal(t, "A", pending[1].Title)

	require.NoError(t, r.MarkSynced(ctx, pending...))

	n, err := r.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err = r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkSynced_ChangedSinceReadStaysPending(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	a := bm("https://example.com/a", "A", t0)
	b := bm("https://example.com/b", "B", t0)
	require.NoError(t, r.Put(ctx, a, true))
	require.NoError(t, r.Put(ctx, b, true))

	sent, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, sent, 2)

	edited := a
	edited.Tags = edited.Tags.Tag("late", t1)
	edited.Updated = t1
	require.NoError(t, r.Put(ctx, edited, true))

	require.NoError(t, r.MarkSynced(ctx, sent...))

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, edited.Equal(pending[0]), "got %v", pending[0])
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	_, err := r.List(context.Background(), false)
	require.ErrorContains(t, err, "failed to select bookmarks")

	err = r.Put(context.Background(), bm("https://example.com/a", "A", t0), true)
	require.ErrorContains(t, err, "failed to upsert bookmark")
}
