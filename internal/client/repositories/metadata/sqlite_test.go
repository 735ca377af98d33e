package metadata

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyRefreshToken, []byte("r1")))
	require.NoError(t, r.Set(ctx, KeyRefreshToken, []byte("r2")))

	v, err := r.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("r2"), v)
}

func TestGet_MissingKey(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, v)

	s, err := GetString(context.Background(), r, "absent")
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestStrings(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, SetStrings(ctx, r, map[string]string{
		KeyUsername:    "alice",
		KeyAccessToken: "a1",
	}))

	name, err := GetString(ctx, r, KeyUsername)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	token, err := GetString(ctx, r, KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a1", token)
}

func TestDeleteAndClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, SetStrings(ctx, r, map[string]string{"a": "1", "b": "2", "c": "3"}))

	require.NoError(t, r.Delete(ctx, "a", "b"))
	require.NoError(t, r.Delete(ctx, "a"))

	v, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = r.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)

	require.NoError(t, r.Clear(ctx))
	v, err = r.Get(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDBErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.ErrorContains(t, err, "failed to get metadata[k]")

	require.ErrorContains(t, r.Set(ctx, "k", []byte("v")), "failed to set metadata[k]")
	require.ErrorContains(t, r.Delete(ctx, "k"), "failed to delete metadata [k]")
	require.ErrorContains(t, r.Clear(ctx), "failed to clear metadata")
	require.ErrorContains(t, SetStrings(ctx, r, map[string]string{"k": "v"}), "failed to set metadata[k]")
}
