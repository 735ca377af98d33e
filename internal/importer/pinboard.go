// Package importer turns bookmark exports from other services into
// marksync bookmarks.
package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/marksync/internal/bookmark"
	"github.com/dmitrijs2005/marksync/internal/urlid"
)

// PinboardPost is one entry of a Pinboard JSON export
// (https://pinboard.in/export/format:json/).
type PinboardPost struct {
	Href        string `json:"href"`
	Description string `json:"description"`
	Extended    string `json:"extended"`
	Time        string `json:"time"`
	Tags        string `json:"tags"`
	ToRead      string `json:"toread"`
}

// Bookmark converts a post as it stood at asOf. Pinboard has no edit
// history, so every field is considered updated at asOf and every tag
// changed when the post was created. Pinboard urls are user typed, so they
// are canonicalized leniently.
func (p PinboardPost) Bookmark(asOf time.Time) (bookmark.Bookmark, error) {
	u, err := urlid.Canonicalize(p.Href, true)
	if err != nil {
		return bookmark.Bookmark{}, err
	}

	created, err := bookmark.ParseTimestamp(p.Time)
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("%w: time %q", bookmark.ErrMalformed, p.Time)
	}

	var triples []bookmark.TagTriple
	for _, name := range strings.Fields(p.Tags) {
		triples = append(triples, bookmark.TagTriple{Name: name, ChangedAt: created})
	}

	return bookmark.Bookmark{
		URL:         u,
		Title:       p.Description,
		Description: p.Extended,
		Created:     created,
		Updated:     asOf,
		Unread:      p.ToRead == "yes",
		Tags:        bookmark.NewTagTriples(triples...),
	}.Normalized(), nil
}

// ConvertPinboard converts every post. Posts that cannot be converted are
// reported in the batch's Rejected list and do not stop the others.
func ConvertPinboard(posts []PinboardPost, asOf time.Time) *bookmark.Batch {
	batch := &bookmark.Batch{}
	for i, p := range posts {
		b, err := p.Bookmark(asOf)
		if err != nil {
			batch.Rejected = append(batch.Rejected, &bookmark.RecordError{Index: i, URL: p.Href, Err: err})
			continue
		}
		batch.Bookmarks = append(batch.Bookmarks, b)
	}
	return batch
}

// ReadPinboard reads a Pinboard JSON export and converts it as of asOf.
func ReadPinboard(r io.Reader, asOf time.Time) (*bookmark.Batch, error) {
	var posts []PinboardPost
	if err := json.NewDecoder(r).Decode(&posts); err != nil {
		return nil, fmt.Errorf("read pinboard export: %w", err)
	}
	return ConvertPinboard(posts, asOf), nil
}
