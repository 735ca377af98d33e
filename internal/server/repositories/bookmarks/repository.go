// Package bookmarks stores each user's bookmarks, with their tag triples, in
// PostgreSQL.
package bookmarks

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
)

// Repository is the storage side of reconciliation. Lock, Get and Upsert are
// meant to run in one transaction per bookmark.
type Repository interface {
	// Lock serializes writers of the same (owner, url) until the
	// surrounding transaction ends.
	Lock(ctx context.Context, owner, urlID uuid.UUID) error

	// Get returns the stored bookmark or common.ErrorNotFound.
	Get(ctx context.Context, owner, urlID uuid.UUID) (*bookmark.Bookmark, error)

	// Upsert writes b over whatever is stored. Stored tag triples missing from
	// b are left alone.
	Upsert(ctx context.Context, owner uuid.UUID, b bookmark.Bookmark) error

	// All returns every bookmark of owner, deleted ones included.
	All(ctx context.Context, owner uuid.UUID) ([]bookmark.Bookmark, error)
}
