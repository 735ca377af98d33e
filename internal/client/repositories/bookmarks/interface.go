// Package bookmarks stores the client's replica of the owner's bookmarks.
//
// Every row carries a pending flag: a local edit sets it, and it is cleared
// once the server has accepted the bookmark.
package bookmarks

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
)

// Repository describes the replica operations.
type Repository interface {
	// Get returns the bookmark stored under id, or nil when there is none.
	Get(ctx context.Context, id uuid.UUID) (*bookmark.Bookmark, error)

	// Put inserts or replaces a bookmark and sets its pending flag.
	Put(ctx context.Context, b bookmark.Bookmark, pending bool) error

	// List returns bookmarks, most recently updated first. Deleted ones are
	// skipped unless includeDeleted is set.
	List(ctx context.Context, includeDeleted bool) ([]bookmark.Bookmark, error)

	// Pending returns bookmarks with local changes not yet accepted by the server.
	Pending(ctx context.Context) ([]bookmark.Bookmark, error)

	// MarkSynced clears the pending flag of each sent snapshot, unless the
	// stored bookmark has changed since it was read.
	MarkSynced(ctx context.Context, sent ...bookmark.Bookmark) error

	// CountPending reports how many bookmarks wait for a sync.
	CountPending(ctx context.Context) (int, error)
}
