package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/bookmarks"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services choose
// whether a repository runs inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Bookmarks(db dbx.DBTX) bookmarks.Repository
}
