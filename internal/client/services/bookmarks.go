package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/client/client"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/bookmarks"
	"github.com/dmitrijs2005/marksync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/importer"
	"github.com/dmitrijs2005/marksync/internal/logging"
	"github.com/dmitrijs2005/marksync/internal/netx"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

// now is a seam for tests.
var now = time.Now

// NewBookmark is what the user types to add a bookmark.
type NewBookmark struct {
	URL         string
	Title       string
	Description string
	Tags        []string
	Unread      bool
}

type ImportResult struct {
	Imported int
	Rejected []*bookmark.RecordError
}

type SyncReport struct {
	Sent     int
	Received int
	Added    int
	Updated  int
	// Still pending after the sync: rejected records and local state the
	// server's answer did not cover.
	Pending  int
	Rejected []client.Rejection
}

type ExportResult struct {
	Export *client.Export
	Bytes  int64
}

// BookmarkService edits the replica and keeps it in step with the server.
// Every local edit is a new snapshot with Updated set to now, so the server
// reconciles it with the same recency rules as any other client's edit.
type BookmarkService interface {
	Add(ctx context.Context, nb NewBookmark) (bookmark.Bookmark, error)
	Tag(ctx context.Context, rawURL string, tags ...string) (bookmark.Bookmark, error)
	Untag(ctx context.Context, rawURL string, tags ...string) (bookmark.Bookmark, error)
	Delete(ctx context.Context, rawURL string) (bookmark.Bookmark, error)
	// List returns live bookmarks, newest first, optionally only those
	// carrying tag.
	List(ctx context.Context, tag string, includeDeleted bool) ([]bookmark.Bookmark, error)
	Import(ctx context.Context, r io.Reader, asOf time.Time) (*ImportResult, error)
	Sync(ctx context.Context, full bool) (*SyncReport, error)
	// Export asks the server for an export and downloads it into w, gunzipped
	// when decompress is set.
	Export(ctx context.Context, w io.Writer, decompress bool) (*ExportResult, error)
}

type bookmarkService struct {
	client    client.Client
	db        *sql.DB
	http      netx.HTTPClient
	logger    logging.Logger
	bookmarks func(dbx.DBTX) bookmarks.Repository
	metadata  func(dbx.DBTX) metadata.Repository
}

func NewBookmarkService(c client.Client, db *sql.DB, httpClient netx.HTTPClient, logger logging.Logger) BookmarkService {
	return &bookmarkService{
		client: c,
		db:     db,
		http:   httpClient,
		logger: logger.With("module", "bookmarks"),
		bookmarks: func(db dbx.DBTX) bookmarks.Repository {
			return bookmarks.NewSQLiteRepository(db)
		},
		metadata: func(db dbx.DBTX) metadata.Repository {
			return metadata.NewSQLiteRepository(db)
		},
	}
}

func (s *bookmarkService) Add(ctx context.Context, nb NewBookmark) (bookmark.Bookmark, error) {
	u, err := urlid.Canonicalize(nb.URL, true)
	if err != nil {
		return bookmark.Bookmark{}, err
	}

	at := bookmark.Timestamp(now())
	b := bookmark.Bookmark{
		URL:         u,
		Title:       nb.Title,
		Description: nb.Description,
		Created:     at,
		Updated:     at,
		Unread:      nb.Unread,
		Tags:        bookmark.TagTriples{},
	}
	for _, tag := range nb.Tags {
		b.Tags = b.Tags.Tag(tag, at)
	}

	var saved bookmark.Bookmark
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.bookmarks(tx)
		existing, err := repo.Get(ctx, b.ID())
		if err != nil {
			return err
		}
		saved = b
		if existing != nil {
			saved = bookmark.Merge(*existing, b)
		}
		return repo.Put(ctx, saved, true)
	})
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("add %s: %w", u, err)
	}
	return saved, nil
}

// edit applies fn to the stored bookmark for rawURL as a new snapshot.
func (s *bookmarkService) edit(ctx context.Context, rawURL string, fn func(b bookmark.Bookmark, at time.Time) bookmark.Bookmark) (bookmark.Bookmark, error) {
	u, err := urlid.Canonicalize(rawURL, true)
	if err != nil {
		return bookmark.Bookmark{}, err
	}

	var saved bookmark.Bookmark
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.bookmarks(tx)
		existing, err := repo.Get(ctx, u.ID())
		if err != nil {
			return err
		}
		if existing == nil {
			return common.ErrorNotFound
		}

		at := bookmark.Timestamp(now())
		if latest := existing.LatestChange(); !at.After(latest) {
			// The clock is behind the stored snapshot or one of its tags;
			// stay ahead of both.
			at = latest.Add(time.Microsecond)
		}
		saved = fn(*existing, at)
		saved.Updated = at
		return repo.Put(ctx, saved, true)
	})
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("edit %s: %w", u, err)
	}
	return saved, nil
}

func (s *bookmarkService) Tag(ctx context.Context, rawURL string, tags ...string) (bookmark.Bookmark, error) {
	return s.edit(ctx, rawURL, func(b bookmark.Bookmark, at time.Time) bookmark.Bookmark {
		for _, tag := range tags {
			b.Tags = b.Tags.Tag(tag, at)
		}
		return b
	})
}

func (s *bookmarkService) Untag(ctx context.Context, rawURL string, tags ...string) (bookmark.Bookmark, error) {
	return s.edit(ctx, rawURL, func(b bookmark.Bookmark, at time.Time) bookmark.Bookmark {
		for _, tag := range tags {
			b.Tags = b.Tags.Untag(tag, at)
		}
		return b
	})
}

func (s *bookmarkService) Delete(ctx context.Context, rawURL string) (bookmark.Bookmark, error) {
	return s.edit(ctx, rawURL, func(b bookmark.Bookmark, _ time.Time) bookmark.Bookmark {
		b.Deleted = true
		return b
	})
}

func (s *bookmarkService) List(ctx context.Context, tag string, includeDeleted bool) ([]bookmark.Bookmark, error) {
	all, err := s.bookmarks(s.db).List(ctx, includeDeleted)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return all, nil
	}

	filtered := all[:0]
	for _, b := range all {
		if slices.Contains(b.CurrentTags(), tag) {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

func (s *bookmarkService) Import(ctx context.Context, r io.Reader, asOf time.Time) (*ImportResult, error) {
	batch, err := importer.ReadPinboard(r, asOf)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.bookmarks(tx)
		for _, b := range batch.Bookmarks {
			existing, err := repo.Get(ctx, b.ID())
			if err != nil {
				return err
			}
			if existing != nil {
				b = bookmark.Merge(*existing, b)
			}
			if err := repo.Put(ctx, b, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	s.logger.Info(ctx, "Imported", "bookmarks", len(batch.Bookmarks), "rejected", len(batch.Rejected))
	return &ImportResult{Imported: len(batch.Bookmarks), Rejected: batch.Rejected}, nil
}

// Sync sends the pending bookmarks (or, with full, the whole replica) and
// merges what the server answers back into the replica.
//
// A returned bookmark is merged with the local copy rather than stored as is,
// so an edit made locally while the call was in flight survives. It stays
// pending if the merge still differs from the server's value. An accepted
// bookmark that was edited after it was read stays pending too.
func (s *bookmarkService) Sync(ctx context.Context, full bool) (*SyncReport, error) {
	repo := s.bookmarks(s.db)

	var sent []bookmark.Bookmark
	var err error
	if full {
		sent, err = repo.List(ctx, true)
	} else {
		sent, err = repo.Pending(ctx)
	}
	if err != nil {
		return nil, err
	}

	res, err := s.client.Sync(ctx, sent, full)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	rejected := make(map[int]bool, len(res.Rejected))
	for _, r := range res.Rejected {
		rejected[r.Index] = true
		s.logger.Warn(ctx, "Bookmark rejected by server", "url", r.URL, "code", r.Code, "reason", r.Message)
	}

	accepted := make([]bookmark.Bookmark, 0, len(sent))
	for i, b := range sent {
		if !rejected[i] {
			accepted = append(accepted, b)
		}
	}

	report := &SyncReport{
		Sent:     len(sent),
		Received: len(res.Bookmarks),
		Added:    res.Added,
		Updated:  res.Updated,
		Rejected: res.Rejected,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.bookmarks(tx)
		if err := repo.MarkSynced(ctx, accepted...); err != nil {
			return err
		}

		for _, remote := range res.Bookmarks {
			local, err := repo.Get(ctx, remote.ID())
			if err != nil {
				return err
			}
			merged, pending := remote, false
			if local != nil {
				merged = bookmark.Merge(*local, remote)
				pending = !merged.Equal(remote)
			}
			if err := repo.Put(ctx, merged, pending); err != nil {
				return err
			}
		}

		n, err := repo.CountPending(ctx)
		if err != nil {
			return err
		}
		report.Pending = n

		return s.metadata(tx).Set(ctx, metadata.KeyLastSync, []byte(bookmark.FormatTimestamp(now())))
	})
	if err != nil {
		return nil, fmt.Errorf("apply sync response: %w", err)
	}

	s.logger.Debug(ctx, "Synced", "sent", report.Sent, "received", report.Received,
		"rejected", len(report.Rejected), "pending", report.Pending, "full", full)
	return report, nil
}

func (s *bookmarkService) Export(ctx context.Context, w io.Writer, decompress bool) (*ExportResult, error) {
	exp, err := s.client.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	if !decompress {
		n, err := netx.Download(ctx, s.http, exp.URL, w)
		if err != nil {
			return nil, fmt.Errorf("download export: %w", err)
		}
		return &ExportResult{Export: exp, Bytes: n}, nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := netx.Download(ctx, s.http, exp.URL, pw)
		pw.CloseWithError(err)
	}()
	defer pr.Close()

	zr, err := gzip.NewReader(pr)
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	n, err := io.Copy(w, zr)
	if err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("download export: %w", err)
	}
	return &ExportResult{Export: exp, Bytes: n}, nil
}
