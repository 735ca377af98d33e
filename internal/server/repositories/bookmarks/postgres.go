package bookmarks

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/common"
	"github.com/dmitrijs2005/marksync/internal/dbx"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// LockKey maps (owner, url) onto the 64-bit key space of Postgres advisory
// locks. Collisions only cost unrelated bookmarks some waiting.
func LockKey(owner, urlID uuid.UUID) int64 {
	key := make([]byte, 0, 32)
	key = append(key, owner[:]...)
	key = append(key, urlID[:]...)
	sum := blake3.Sum256(key)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func (r *PostgresRepository) Lock(ctx context.Context, owner, urlID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, LockKey(owner, urlID)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectBookmarks = `
	SELECT u.url, b.title, b.description, b.created, b.updated, b.unread, b.deleted
	FROM bookmarks b
	JOIN urls u ON u.url_uuid = b.url_uuid
	WHERE b.user_uuid = $1`

const selectTags = `
	SELECT bt.url_uuid, t.tag_name, bt.updated, bt.deleted
	FROM bookmark_tags bt
	JOIN tags t ON t.tag_id = bt.tag_id
	WHERE bt.user_uuid = $1`

func (r *PostgresRepository) Get(ctx context.Context, owner, urlID uuid.UUID) (*bookmark.Bookmark, error) {
	b, err := scanBookmark(r.db.QueryRowContext(ctx, selectBookmarks+` AND b.url_uuid = $2`, owner, urlID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}

	tags, err := r.tags(ctx, selectTags+` AND bt.url_uuid = $2`, owner, urlID)
	if err != nil {
		return nil, err
	}
	b.Tags = bookmark.NewTagTriples(tags[urlID]...)
	return &b, nil
}

func (r *PostgresRepository) All(ctx context.Context, owner uuid.UUID) ([]bookmark.Bookmark, error) {
	rows, err := r.db.QueryContext(ctx, selectBookmarks+` ORDER BY b.created, u.url`, owner)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []bookmark.Bookmark
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	tags, err := r.tags(ctx, selectTags, owner)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Tags = bookmark.NewTagTriples(tags[result[i].ID()]...)
	}
	return result, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, owner uuid.UUID, b bookmark.Bookmark) error {
	b = b.Normalized()
	parts := b.URL.Parts()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO urls (url_uuid, url, scheme, netloc, path, query, fragment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (url_uuid) DO NOTHING`,
		b.ID(), b.URL.String(), parts[0], parts[1], parts[2], parts[3], parts[4]); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO bookmarks (url_uuid, user_uuid, title, description, created, updated, unread, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url_uuid, user_uuid) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			created = EXCLUDED.created,
			updated = EXCLUDED.updated,
			unread = EXCLUDED.unread,
			deleted = EXCLUDED.deleted`,
		b.ID(), owner, b.Title, b.Description, b.Created, b.Updated, b.Unread, b.Deleted); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, tt := range b.Tags {
		if _, err := r.db.ExecContext(ctx, `
			WITH t AS (
				INSERT INTO tags (tag_name) VALUES ($3)
				ON CONFLICT (tag_name) DO UPDATE SET tag_name = EXCLUDED.tag_name
				RETURNING tag_id
			)
			INSERT INTO bookmark_tags (url_uuid, user_uuid, tag_id, updated, deleted)
			SELECT $1, $2, tag_id, $4, $5 FROM t
			ON CONFLICT (url_uuid, user_uuid, tag_id) DO UPDATE SET
				updated = EXCLUDED.updated,
				deleted = EXCLUDED.deleted`,
			b.ID(), owner, tt.Name, tt.ChangedAt, tt.Deleted); err != nil {
			return fmt.Errorf("db error: tag %q: %w", tt.Name, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(s scanner) (bookmark.Bookmark, error) {
	var (
		b   bookmark.Bookmark
		raw string
	)
	if err := s.Scan(&raw, &b.Title, &b.Description, &b.Created, &b.Updated, &b.Unread, &b.Deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("db error: %w", err)
	}

	u, err := urlid.Canonicalize(raw, false)
	if err != nil {
		return b, fmt.Errorf("stored url: %w", err)
	}
	b.URL = u
	b.Created = bookmark.Timestamp(b.Created)
	b.Updated = bookmark.Timestamp(b.Updated)
	return b, nil
}

func (r *PostgresRepository) tags(ctx context.Context, query string, args ...any) (map[uuid.UUID][]bookmark.TagTriple, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]bookmark.TagTriple)
	for rows.Next() {
		var (
			id uuid.UUID
			tt bookmark.TagTriple
		)
		if err := rows.Scan(&id, &tt.Name, &tt.ChangedAt, &tt.Deleted); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result[id] = append(result[id], tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

var _ Repository = (*PostgresRepository)(nil)
