package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
)

// Tokens is the session issued by Login and rotated by refresh.
type Tokens struct {
	Access  string
	Refresh string
}

func (t Tokens) IsZero() bool { return t.Access == "" && t.Refresh == "" }

// Rejection is one record of a sync the server did not accept. Index points
// into the slice that was sent.
type Rejection struct {
	Index   int
	URL     string
	Code    string
	Message string
}

type SyncResult struct {
	// Bookmarks the client must merge into its replica.
	Bookmarks []bookmark.Bookmark
	Rejected  []Rejection
	Added     int
	Updated   int
}

// Export describes an uploaded export and where to download it.
type Export struct {
	Key     string
	URL     string
	Count   int
	Expires time.Time
}

type Client interface {
	Close() error
	// Register returns the hex encoded API key of the new account.
	Register(ctx context.Context, username string, password []byte) (string, error)
	Login(ctx context.Context, username string, password []byte) error
	Tokens() Tokens
	SetTokens(t Tokens)
	Ping(ctx context.Context) error
	Sync(ctx context.Context, bookmarks []bookmark.Bookmark, full bool) (*SyncResult, error)
	Export(ctx context.Context) (*Export, error)
}
