package bookmark

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/marksync/internal/urlid"
)

// ErrMalformed is wrapped by every decoding error that is not an identity
// error: bad JSON, missing fields, unparseable timestamps.
var ErrMalformed = errors.New("malformed bookmark")

// naiveTimestamp is accepted for timestamps without a zone, read as UTC.
const naiveTimestamp = "2006-01-02T15:04:05.999999999"

type wireBookmark struct {
	URL         *string         `json:"url"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Created     *string         `json:"created"`
	Updated     *string         `json:"updated"`
	Unread      bool            `json:"unread"`
	Deleted     bool            `json:"deleted"`
	TagTriples  []wireTagTriple `json:"tag_triples"`
}

// wireTagTriple is encoded as a three element array [name, changed_at, deleted].
type wireTagTriple struct {
	Name      string
	ChangedAt string
	Deleted   bool
}

func (w wireTagTriple) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{w.Name, w.ChangedAt, w.Deleted})
}

func (w *wireTagTriple) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tag triple: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("tag triple: want 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &w.Name); err != nil {
		return fmt.Errorf("tag triple name: %w", err)
	}
	if err := json.Unmarshal(raw[1], &w.ChangedAt); err != nil {
		return fmt.Errorf("tag triple changed_at: %w", err)
	}
	if err := json.Unmarshal(raw[2], &w.Deleted); err != nil {
		return fmt.Errorf("tag triple deleted: %w", err)
	}
	return nil
}

// FormatTimestamp renders t the way it travels on the wire.
func FormatTimestamp(t time.Time) string {
	return Timestamp(t).Format(time.RFC3339Nano)
}

// ParseTimestamp reads an ISO-8601 timestamp. Timestamps without a zone are
// taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var naiveErr error
		t, naiveErr = time.ParseInLocation(naiveTimestamp, s, time.UTC)
		if naiveErr != nil {
			return time.Time{}, err
		}
	}
	return Timestamp(t), nil
}

func (b Bookmark) MarshalJSON() ([]byte, error) {
	u := b.URL.String()
	created := FormatTimestamp(b.Created)
	updated := FormatTimestamp(b.Updated)

	w := wireBookmark{
		URL:         &u,
		Title:       b.Title,
		Description: b.Description,
		Created:     &created,
		Updated:     &updated,
		Unread:      b.Unread,
		Deleted:     b.Deleted,
		TagTriples:  make([]wireTagTriple, len(b.Tags)),
	}
	for i, t := range b.Tags {
		w.TagTriples[i] = wireTagTriple{Name: t.Name, ChangedAt: FormatTimestamp(t.ChangedAt), Deleted: t.Deleted}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form. The url must already be canonical;
// its errors are returned unchanged so callers can tell identity errors from
// malformed input.
func (b *Bookmark) UnmarshalJSON(data []byte) error {
	var w wireBookmark
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.URL == nil {
		return fmt.Errorf("%w: missing url", ErrMalformed)
	}
	if w.Created == nil || w.Updated == nil {
		return fmt.Errorf("%w: missing created or updated", ErrMalformed)
	}

	u, err := urlid.Canonicalize(*w.URL, false)
	if err != nil {
		return err
	}

	created, err := ParseTimestamp(*w.Created)
	if err != nil {
		return fmt.Errorf("%w: created: %v", ErrMalformed, err)
	}
	updated, err := ParseTimestamp(*w.Updated)
	if err != nil {
		return fmt.Errorf("%w: updated: %v", ErrMalformed, err)
	}

	triples := make([]TagTriple, 0, len(w.TagTriples))
	for _, wt := range w.TagTriples {
		at, err := ParseTimestamp(wt.ChangedAt)
		if err != nil {
			return fmt.Errorf("%w: tag %q: %v", ErrMalformed, wt.Name, err)
		}
		triples = append(triples, TagTriple{Name: wt.Name, ChangedAt: at, Deleted: wt.Deleted})
	}

	*b = Bookmark{
		URL:         u,
		Title:       w.Title,
		Description: w.Description,
		Created:     created,
		Updated:     updated,
		Unread:      w.Unread,
		Deleted:     w.Deleted,
		Tags:        NewTagTriples(triples...),
	}
	return nil
}

// rawURL extracts the url field from a record for error reporting, if it can.
func rawURL(data []byte) string {
	var probe struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&probe); err != nil {
		return ""
	}
	return probe.URL
}
