package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/server/models"
	bookmarksrepo "github.com/dmitrijs2005/marksync/internal/server/repositories/bookmarks"
	refreshtokensrepo "github.com/dmitrijs2005/marksync/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/marksync/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	created   *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getOut == nil || f.getOut.UserName != userName {
		return nil, common.ErrorNotFound
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if f.getOut == nil || f.getOut.ID.String() != id {
		return nil, common.ErrorNotFound
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	findOut *models.RefreshToken
	findErr error

	delErr    error
	createErr error

	created []string
	deleted []string
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID uuid.UUID, token string, validity time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, token)
	return nil
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, token)
	return nil
}

// fakeBookmarksRepo keeps one collection per owner in memory. Hooks let a
// test fail a given url.
type fakeBookmarksRepo struct {
	mu      sync.Mutex
	store   map[uuid.UUID]map[uuid.UUID]bookmark.Bookmark
	locks   []uuid.UUID
	upserts int

	getErr    func(urlID uuid.UUID) error
	upsertErr error
	allErr    error
}

func newFakeBookmarksRepo() *fakeBookmarksRepo {
	return &fakeBookmarksRepo{store: make(map[uuid.UUID]map[uuid.UUID]bookmark.Bookmark)}
}

func (f *fakeBookmarksRepo) put(owner uuid.UUID, b bookmark.Bookmark) {
	if f.store[owner] == nil {
		f.store[owner] = make(map[uuid.UUID]bookmark.Bookmark)
	}
	f.store[owner][b.ID()] = b
}

func (f *fakeBookmarksRepo) Lock(ctx context.Context, owner, urlID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, urlID)
	return nil
}

func (f *fakeBookmarksRepo) Get(ctx context.Context, owner, urlID uuid.UUID) (*bookmark.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		if err := f.getErr(urlID); err != nil {
			return nil, err
		}
	}
	b, ok := f.store[owner][urlID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &b, nil
}

func (f *fakeBookmarksRepo) Upsert(ctx context.Context, owner uuid.UUID, b bookmark.Bookmark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.put(owner, b.Normalized())
	return nil
}

func (f *fakeBookmarksRepo) All(ctx context.Context, owner uuid.UUID) ([]bookmark.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allErr != nil {
		return nil, f.allErr
	}
	var out []bookmark.Bookmark
	for _, b := range f.store[owner] {
		out = append(out, b)
	}
	return out, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	b *fakeBookmarksRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Bookmarks(db dbx.DBTX) bookmarksrepo.Repository         { return m.b }

type notification struct {
	owner, urlID uuid.UUID
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *fakeNotifier) NotifyCreated(ctx context.Context, owner, urlID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{owner, urlID})
	return n.err
}
