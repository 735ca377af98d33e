package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/server/models"
)

var aliceID = uuid.MustParse("6f1b0c4e-5d1a-4a52-9f3e-2b7f3c9d8e01")

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQuery = `(?s)^INSERT\s+INTO\s+users\s*\(user_uuid,\s*username,\s*password_hash,\s*api_key\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+registered\s*$`

func newAlice() *models.User {
	return &models.User{ID: aliceID, UserName: "alice", PasswordHash: []byte("hash"), APIKey: []byte{0xab, 0xcd}}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	registered := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(insertQuery).
		WithArgs(aliceID, "alice", []byte("hash"), []byte{0xab, 0xcd}).
		WillReturnRows(sqlmock.NewRows([]string{"registered"}).AddRow(registered))

	got, err := repo.Create(context.Background(), newAlice())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !got.Registered.Equal(registered) || got.UserName != "alice" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestCreate_UsernameTaken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WithArgs(aliceID, "alice", []byte("hash"), []byte{0xab, 0xcd}).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), newAlice())
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQuery).
		WithArgs(aliceID, "alice", []byte("hash"), []byte{0xab, 0xcd}).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), newAlice())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

const selectByName = `(?s)^SELECT\s+user_uuid,\s*username,\s*password_hash,\s*api_key,\s*registered\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1$`

func TestGetUserByLogin_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_uuid", "username", "password_hash", "api_key", "registered"}).
		AddRow(aliceID.String(), "alice", []byte("hash"), []byte{0x01}, time.Now())
	mock.ExpectQuery(selectByName).WithArgs("alice").WillReturnRows(rows)

	got, err := repo.GetUserByLogin(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByLogin error: %v", err)
	}
	if got.ID != aliceID || string(got.PasswordHash) != "hash" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetUserByLogin_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(selectByName).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUserByLogin(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetUserByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+.*\s+FROM\s+users\s+WHERE\s+user_uuid\s*=\s*\$1$`
	mock.ExpectQuery(q).WithArgs(aliceID.String()).WillReturnError(errors.New("db err"))

	_, err := repo.GetUserByID(context.Background(), aliceID.String())
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
