package bookmarks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/dbx"
)

// SQLiteRepository keeps each bookmark in its wire form, with the columns the
// replica needs to query by lifted out next to it.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, id uuid.UUID) (*bookmark.Bookmark, error) {
	var record string
	err := r.db.QueryRowContext(ctx, `SELECT record FROM bookmarks WHERE url_uuid = ?`, id.String()).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark %s: %w", id, err)
	}

	b, err := decode(record)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, b bookmark.Bookmark, pending bool) error {
	record, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode bookmark %s: %w", b.URL, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bookmarks (url_uuid, url, updated, deleted, pending, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_uuid) DO UPDATE SET
			updated = excluded.updated,
			deleted = excluded.deleted,
			pending = excluded.pending,
			record = excluded.record
	`, b.ID().String(), b.URL.String(), b.Updated.UnixMicro(), b.Deleted, pending, string(record))
	if err != nil {
		return fmt.Errorf("failed to upsert bookmark %s: %w", b.URL, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, includeDeleted bool) ([]bookmark.Bookmark, error) {
	query := `SELECT record FROM bookmarks WHERE deleted = 0 ORDER BY updated DESC, url`
	if includeDeleted {
		query = `SELECT record FROM bookmarks ORDER BY updated DESC, url`
	}
	return r.query(ctx, query)
}

func (r *SQLiteRepository) Pending(ctx context.Context) ([]bookmark.Bookmark, error) {
	return r.query(ctx, `SELECT record FROM bookmarks WHERE pending = 1 ORDER BY updated, url`)
}

// MarkSynced clears pending only on rows whose record is still byte for byte
// the snapshot that was sent.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, sent ...bookmark.Bookmark) error {
	for _, b := range sent {
		record, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to encode bookmark %s: %w", b.URL, err)
		}
		_, err = r.db.ExecContext(ctx, `UPDATE bookmarks SET pending = 0 WHERE url_uuid = ? AND record = ?`,
			b.ID().String(), string(record))
		if err != nil {
			return fmt.Errorf("failed to mark bookmark %s synced: %w", b.URL, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookmarks WHERE pending = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending bookmarks: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string) ([]bookmark.Bookmark, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select bookmarks: %w", err)
	}
	defer rows.Close()

	var result []bookmark.Bookmark
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark row: %w", err)
		}
		b, err := decode(record)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmark rows: %w", err)
	}
	return result, nil
}

func decode(record string) (bookmark.Bookmark, error) {
	var b bookmark.Bookmark
	if err := json.Unmarshal([]byte(record), &b); err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("failed to decode stored bookmark: %w", err)
	}
	return b, nil
}
