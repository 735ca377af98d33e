package bookmark

import (
	"slices"
	"strings"
	"time"
)

// TagTriple records the last change to one tag on one bookmark. A deleted
// triple is a tombstone: it keeps an untagging from being undone by a replica
// that has not seen it yet.
type TagTriple struct {
	Name      string
	ChangedAt time.Time
	Deleted   bool
}

// TagTriples is sorted by name with at most one triple per name. Build it with
// NewTagTriples or MergeTagTriples.
type TagTriples []TagTriple

// wins reports whether t beats other for the same name: the later change
// wins, and on a tie the live triple beats the tombstone.
func (t TagTriple) wins(other TagTriple) bool {
	if c := t.ChangedAt.Compare(other.ChangedAt); c != 0 {
		return c > 0
	}
	return !t.Deleted && other.Deleted
}

func (t TagTriple) Equal(other TagTriple) bool {
	return t.Name == other.Name && t.ChangedAt.Equal(other.ChangedAt) && t.Deleted == other.Deleted
}

// NewTagTriples normalizes arbitrary triples: timestamps are normalized,
// the result is sorted by name and duplicates collapse to the winning triple.
func NewTagTriples(triples ...TagTriple) TagTriples {
	if len(triples) == 0 {
		return TagTriples{}
	}

	sorted := make([]TagTriple, len(triples))
	for i, t := range triples {
		t.ChangedAt = Timestamp(t.ChangedAt)
		sorted[i] = t
	}
	slices.SortStableFunc(sorted, func(a, b TagTriple) int { return strings.Compare(a.Name, b.Name) })

	out := make(TagTriples, 0, len(sorted))
	for _, t := range sorted {
		last := len(out) - 1
		if last >= 0 && out[last].Name == t.Name {
			if t.wins(out[last]) {
				out[last] = t
			}
			continue
		}
		out = append(out, t)
	}
	return out
}

// MergeTagTriples keeps, per tag name, the triple with the later ChangedAt.
// When both sides changed a tag at the same instant, the non-deleted triple
// wins. A name present on one side only is kept as is, so a replica that
// never saw a tag cannot remove it by omission.
func MergeTagTriples(a, b TagTriples) TagTriples {
	all := make([]TagTriple, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return NewTagTriples(all...)
}

// Current returns the names of live tags, sorted.
func (ts TagTriples) Current() []string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		if !t.Deleted {
			names = append(names, t.Name)
		}
	}
	slices.Sort(names)
	return names
}

// Get returns the triple for name, if any.
func (ts TagTriples) Get(name string) (TagTriple, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t, true
		}
	}
	return TagTriple{}, false
}

func (ts TagTriples) Equal(other TagTriples) bool {
	return slices.EqualFunc(ts, other, TagTriple.Equal)
}

// Tag returns a copy of ts with name live as of at.
func (ts TagTriples) Tag(name string, at time.Time) TagTriples {
	return MergeTagTriples(ts, TagTriples{{Name: name, ChangedAt: at}})
}

// Untag returns a copy of ts with a tombstone for name as of at.
func (ts TagTriples) Untag(name string, at time.Time) TagTriples {
	return MergeTagTriples(ts, TagTriples{{Name: name, ChangedAt: at, Deleted: true}})
}
