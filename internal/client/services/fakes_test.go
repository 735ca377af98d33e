package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/logging"
)

type fakeClient struct {
	tokens      client.Tokens
	loginTokens client.Tokens
	apiKey      string
	loginErr    error
	registerErr error
	pingErr     error

	syncFn   func(sent []bookmark.Bookmark, full bool) (*client.SyncResult, error)
	lastSent []bookmark.Bookmark
	lastFull bool

	export    *client.Export
	exportErr error
	closed    bool
}

func (f *fakeClient) Close() error { f.closed = true; return nil }

func (f *fakeClient) Register(ctx context.Context, username string, password []byte) (string, error) {
	return f.apiKey, f.registerErr
}

func (f *fakeClient) Login(ctx context.Context, username string, password []byte) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.tokens = f.loginTokens
	return nil
}

func (f *fakeClient) Tokens() client.Tokens     { return f.tokens }
func (f *fakeClient) SetTokens(t client.Tokens) { f.tokens = t }
func (f *fakeClient) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeClient) Sync(ctx context.Context, sent []bookmark.Bookmark, full bool) (*client.SyncResult, error) {
	f.lastSent, f.lastFull = sent, full
	if f.syncFn == nil {
		return &client.SyncResult{}, nil
	}
	return f.syncFn(sent, full)
}

func (f *fakeClient) Export(ctx context.Context) (*client.Export, error) {
	return f.export, f.exportErr
}

var (
	t0 = time.Date(2022, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func openReplica(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setNow(t *testing.T, at time.Time) {
	t.Helper()
	old := now
	t.Cleanup(func() { now = old })
	now = func() time.Time { return at }
}

func newBookmarkService(c client.Client, db *sql.DB) *bookmarkService {
	return NewBookmarkService(c, db, nil, logging.Nop()).(*bookmarkService)
}
