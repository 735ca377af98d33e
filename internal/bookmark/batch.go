package bookmark

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"

	"github.com/dmitrijs2005/marksync/internal/urlid"
)

// Framing is the way a batch of bookmarks is laid out on the wire.
type Framing int

const (
	// FramingJSON is a JSON array, or an object with a "bookmarks" array.
	FramingJSON Framing = iota
	// FramingNDJSON is one bookmark object per line.
	FramingNDJSON
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
)

// FramingFor picks the framing from a Content-Type header. Only
// application/json selects FramingJSON; anything else is read as NDJSON.
func FramingFor(contentType string) Framing {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == ContentTypeJSON {
		return FramingJSON
	}
	return FramingNDJSON
}

func (f Framing) ContentType() string {
	if f == FramingJSON {
		return ContentTypeJSON
	}
	return ContentTypeNDJSON
}

func (f Framing) String() string {
	if f == FramingJSON {
		return "json"
	}
	return "ndjson"
}

// RecordError reports one record of a batch that could not be accepted.
type RecordError struct {
	Index int
	URL   string
	Err   error
}

func (e *RecordError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Batch is a decoded sync request: the bookmarks that decoded cleanly and the
// records that did not. One bad record never rejects the others.
type Batch struct {
	Bookmarks []Bookmark
	Rejected  []*RecordError
}

func (b *Batch) add(index int, data []byte) {
	var bm Bookmark
	if err := json.Unmarshal(data, &bm); err != nil {
		if !urlid.IsIdentityError(err) && !errors.Is(err, ErrMalformed) {
			err = fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		b.Rejected = append(b.Rejected, &RecordError{Index: index, URL: rawURL(data), Err: err})
		return
	}
	b.Bookmarks = append(b.Bookmarks, bm)
}

// NewBatch wraps already decoded bookmarks.
func NewBatch(bookmarks ...Bookmark) *Batch {
	return &Batch{Bookmarks: bookmarks}
}

// DecodeBatch reads a whole batch in the given framing.
func DecodeBatch(r io.Reader, f Framing) (*Batch, error) {
	if f == FramingJSON {
		return DecodeJSON(r)
	}
	return DecodeNDJSON(r)
}

// DecodeJSON reads a JSON array of bookmarks or the {"bookmarks": [...]}
// envelope. A document that is not valid JSON fails as a whole; a record that
// is valid JSON but not a valid bookmark is rejected on its own.
func DecodeJSON(r io.Reader) (*Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}

	var records []json.RawMessage
	switch trimmed := bytes.TrimSpace(data); {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	case trimmed[0] == '{':
		var envelope struct {
			Bookmarks []json.RawMessage `json:"bookmarks"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		records = envelope.Bookmarks
	default:
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	batch := &Batch{}
	for i, rec := range records {
		batch.add(i, rec)
	}
	return batch, nil
}

// DecodeNDJSON reads one bookmark per line. Blank lines are skipped and do
// not count towards record indexes.
func DecodeNDJSON(r io.Reader) (*Batch, error) {
	br := bufio.NewReader(r)
	batch := &Batch{}
	index := 0
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			batch.add(index, trimmed)
			index++
		}
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read batch: %w", err)
		}
	}
}

// Writer streams bookmarks in one framing. Close must be called to finish a
// JSON document.
type Writer struct {
	w       io.Writer
	framing Framing
	n       int
	enc     *json.Encoder
}

func NewWriter(w io.Writer, f Framing) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{w: w, framing: f, enc: enc}
}

// Write appends one bookmark.
func (bw *Writer) Write(b Bookmark) error {
	if bw.framing == FramingJSON {
		prefix := ","
		if bw.n == 0 {
			prefix = `{"bookmarks":[`
		}
		if _, err := io.WriteString(bw.w, prefix); err != nil {
			return err
		}
	}
	// json.Encoder terminates every value with a newline, which is exactly the
	// NDJSON separator and harmless whitespace inside the JSON array.
	if err := bw.enc.Encode(b); err != nil {
		return err
	}
	bw.n++
	return nil
}

// Close finishes the document. It writes nothing for NDJSON.
func (bw *Writer) Close() error {
	if bw.framing != FramingJSON {
		return nil
	}
	end := "]}\n"
	if bw.n == 0 {
		end = `{"bookmarks":[]}` + "\n"
	}
	_, err := io.WriteString(bw.w, end)
	return err
}

// Count is the number of bookmarks written so far.
func (bw *Writer) Count() int { return bw.n }

// EncodeBatch writes all bookmarks in one framing.
func EncodeBatch(w io.Writer, f Framing, bookmarks []Bookmark) error {
	bw := NewWriter(w, f)
	for _, b := range bookmarks {
		if err := bw.Write(b); err != nil {
			return err
		}
	}
	return bw.Close()
}
