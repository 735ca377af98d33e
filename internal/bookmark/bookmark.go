// Package bookmark holds the bookmark value type and the merge that lets any
// number of replicas converge on the same state without coordination.
//
// Merge is idempotent, commutative and associative. Every field has a total
// tie-break rule, so two well-formed bookmarks for the same url always merge.
package bookmark

import (
	"cmp"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/marksync/internal/urlid"
	"github.com/google/uuid"
)

// Bookmark is one owner's record about one url. Values are never mutated in
// place; every edit produces a new Bookmark.
type Bookmark struct {
	URL         urlid.URL
	Title       string
	Description string
	Created     time.Time
	Updated     time.Time
	Unread      bool
	Deleted     bool
	Tags        TagTriples
}

// Timestamp normalizes t to the precision storage keeps: UTC, whole
// microseconds. A bookmark read back from storage must compare equal to the
// one that was written.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ID is the identity of the bookmark's url.
func (b Bookmark) ID() uuid.UUID { return b.URL.ID() }

// Normalized returns b with normalized timestamps and tag triples.
func (b Bookmark) Normalized() Bookmark {
	b.Created = Timestamp(b.Created)
	b.Updated = Timestamp(b.Updated)
	b.Tags = NewTagTriples(b.Tags...)
	return b
}

// LatestChange is the latest of Updated and every tag's ChangedAt. An edit
// stamped after it is guaranteed to take effect.
func (b Bookmark) LatestChange() time.Time {
	latest := b.Updated
	for _, t := range b.Tags {
		if t.ChangedAt.After(latest) {
			latest = t.ChangedAt
		}
	}
	return latest
}

// CurrentTags returns the names of tags that are not deleted, sorted.
func (b Bookmark) CurrentTags() []string {
	return b.Tags.Current()
}

// Equal compares two bookmarks field by field. Timestamps are compared as
// instants.
func (b Bookmark) Equal(other Bookmark) bool {
	return b.URL.Equal(other.URL) &&
		b.Title == other.Title &&
		b.Description == other.Description &&
		b.Created.Equal(other.Created) &&
		b.Updated.Equal(other.Updated) &&
		b.Unread == other.Unread &&
		b.Deleted == other.Deleted &&
		b.Tags.Equal(other.Tags)
}

func (b Bookmark) String() string {
	return fmt.Sprintf("Bookmark(%s, %q, updated=%s, deleted=%t)",
		b.URL, b.Title, b.Updated.Format(time.RFC3339Nano), b.Deleted)
}

// compareRecency orders bookmarks by
// (updated, len(title), len(description), title, description, unread, !deleted).
// Lengths count code points. The order is total: two bookmarks that compare
// equal have identical title, description, unread and deleted fields.
func compareRecency(a, b Bookmark) int {
	if c := a.Updated.Compare(b.Updated); c != 0 {
		return c
	}
	if c := cmp.Compare(utf8.RuneCountInString(a.Title), utf8.RuneCountInString(b.Title)); c != 0 {
		return c
	}
	if c := cmp.Compare(utf8.RuneCountInString(a.Description), utf8.RuneCountInString(b.Description)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	if c := strings.Compare(a.Description, b.Description); c != 0 {
		return c
	}
	if c := compareBool(a.Unread, b.Unread); c != 0 {
		return c
	}
	return compareBool(!a.Deleted, !b.Deleted)
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// Merge combines two versions of the same bookmark. Title, description,
// unread and deleted come from the more recent side; created is the earlier
// of the two and updated the later; tags are merged per name. Both sides are
// normalized first, so the result is normalized too.
//
// Merge panics if a and b are about different urls.
func Merge(a, b Bookmark) Bookmark {
	if a.ID() != b.ID() {
		panic(fmt.Sprintf("bookmark: merging different urls %s and %s", a.URL, b.URL))
	}
	a, b = a.Normalized(), b.Normalized()

	recent := a
	if compareRecency(b, a) > 0 {
		recent = b
	}

	created := a.Created
	if b.Created.Before(created) {
		created = b.Created
	}
	updated := a.Updated
	if b.Updated.After(updated) {
		updated = b.Updated
	}

	return Bookmark{
		URL:         a.URL,
		Title:       recent.Title,
		Description: recent.Description,
		Created:     created,
		Updated:     updated,
		Unread:      recent.Unread,
		Deleted:     recent.Deleted,
		Tags:        MergeTagTriples(a.Tags, b.Tags),
	}
}
