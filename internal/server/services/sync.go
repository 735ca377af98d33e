package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/logging"
	"github.com/dmitrijs2005/marksync/internal/server/repositories/repomanager"
)

// Notifier is told about bookmarks that did not exist before a sync, so a
// background worker can crawl and index them.
type Notifier interface {
	NotifyCreated(ctx context.Context, owner, urlID uuid.UUID) error
}

// txAttempts bounds how often one bookmark's transaction is retried after a
// serialization failure or deadlock.
const txAttempts = 3

// ReconcileResult describes what a batch did to the stored collection.
type ReconcileResult struct {
	// Changed holds the merged value of every bookmark the client was stale
	// on, once per url.
	Changed []bookmark.Bookmark
	// Added lists the urls that were new for the user.
	Added []uuid.UUID
	// Updated counts bookmarks whose stored value changed, Added included.
	Updated   int
	Unchanged int

	changedIndex map[uuid.UUID]int
}

func (r *ReconcileResult) record(merged bookmark.Bookmark, outcome bookmark.Outcome) {
	id := merged.ID()
	if outcome.Has(bookmark.Created) {
		r.Added = append(r.Added, id)
	}
	if outcome.NeedsWrite() {
		r.Updated++
	}
	if outcome == bookmark.Unchanged {
		r.Unchanged++
	}

	i, seen := r.changedIndex[id]
	switch {
	case seen:
		// A later record for the same url in one batch; the client should
		// see the latest state.
		r.Changed[i] = merged
	case outcome.Has(bookmark.ClientStale):
		if r.changedIndex == nil {
			r.changedIndex = make(map[uuid.UUID]int)
		}
		r.changedIndex[id] = len(r.Changed)
		r.Changed = append(r.Changed, merged)
	}
}

// SyncResult is what a transport sends back for one sync request.
type SyncResult struct {
	// Bookmarks is either the changed set or, for a full sync, everything.
	Bookmarks []bookmark.Bookmark
	Rejected  []*bookmark.RecordError
	Reconcile *ReconcileResult
}

type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    Notifier
	logger      logging.Logger
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, notifier Notifier, logger logging.Logger) *SyncService {
	return &SyncService{
		db:          db,
		repomanager: m,
		notifier:    notifier,
		logger:      logger.With("module", "sync_service"),
	}
}

// Reconcile merges incoming into the owner's stored bookmarks, one
// transaction per bookmark. On error or cancellation the bookmarks already
// applied stay applied and are reported in the partial result.
func (s *SyncService) Reconcile(ctx context.Context, owner uuid.UUID, incoming []bookmark.Bookmark) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	for _, in := range incoming {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		merged, outcome, err := s.reconcileOne(ctx, owner, in)
		if err != nil {
			return result, fmt.Errorf("reconcile %s: %w", in.URL, err)
		}
		result.record(merged, outcome)

		if outcome.Has(bookmark.Created) {
			if err := s.notifier.NotifyCreated(ctx, owner, merged.ID()); err != nil {
				s.logger.Warn(ctx, "bookmark created notification failed", "user", owner, "url", merged.URL.String(), "error", err)
			}
		}
	}

	return result, nil
}

func (s *SyncService) reconcileOne(ctx context.Context, owner uuid.UUID, in bookmark.Bookmark) (bookmark.Bookmark, bookmark.Outcome, error) {
	var (
		merged  bookmark.Bookmark
		outcome bookmark.Outcome
	)

	err := dbx.WithTxRetry(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Bookmarks(tx)

		if err := repo.Lock(ctx, owner, in.ID()); err != nil {
			return err
		}
		existing, err := repo.Get(ctx, owner, in.ID())
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		merged, outcome = bookmark.Reconcile(existing, in)
		if outcome.NeedsWrite() {
			return repo.Upsert(ctx, owner, merged)
		}
		return nil
	})

	return merged, outcome, err
}

// All returns the owner's whole collection, logically deleted bookmarks
// included.
func (s *SyncService) All(ctx context.Context, owner uuid.UUID) ([]bookmark.Bookmark, error) {
	all, err := s.repomanager.Bookmarks(s.db).All(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("error loading bookmarks: %w", err)
	}
	return all, nil
}

// Sync is the entry point shared by the transports: it reconciles the
// valid records of batch and answers with the changed set, or with the
// whole collection when full is set.
func (s *SyncService) Sync(ctx context.Context, owner uuid.UUID, batch *bookmark.Batch, full bool) (*SyncResult, error) {
	rec, err := s.Reconcile(ctx, owner, batch.Bookmarks)
	if err != nil {
		return nil, err
	}

	res := &SyncResult{Bookmarks: rec.Changed, Rejected: batch.Rejected, Reconcile: rec}
	if full {
		if res.Bookmarks, err = s.All(ctx, owner); err != nil {
			return nil, err
		}
	}

	s.logger.Info(ctx, "sync",
		"user", owner,
		"received", len(batch.Bookmarks),
		"rejected", len(batch.Rejected),
		"added", len(rec.Added),
		"updated", rec.Updated,
		"returned", len(res.Bookmarks),
		"full", full,
	)
	return res, nil
}
