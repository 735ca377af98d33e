// Package notify publishes bookmark lifecycle events for background workers.
package notify

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TimeTag = cbor.EncTagRequired
	if encMode, err = opts.EncMode(); err != nil {
		panic("notify: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("notify: CBOR decoder initialization failed: " + err.Error())
	}
}

// Event types, stored in the "type" field of every stream entry.
const (
	TypeBookmarkCreated = "bookmark_created"
)

// BookmarkCreated tells the indexing worker that a user saved a url for the
// first time.
type BookmarkCreated struct {
	EventID uuid.UUID `cbor:"event_id"`
	Created time.Time `cbor:"created"`
	UserID  uuid.UUID `cbor:"user_uuid"`
	URLID   uuid.UUID `cbor:"url_uuid"`
}

var (
	now        = time.Now
	newEventID = uuid.New
)

func NewBookmarkCreated(owner, urlID uuid.UUID) BookmarkCreated {
	return BookmarkCreated{
		EventID: newEventID(),
		Created: now().UTC(),
		UserID:  owner,
		URLID:   urlID,
	}
}

func (e BookmarkCreated) MarshalCBOR() ([]byte, error) {
	type plain BookmarkCreated
	return encMode.Marshal(plain(e))
}

func (e *BookmarkCreated) UnmarshalCBOR(data []byte) error {
	type plain BookmarkCreated
	var p plain
	if err := decMode.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode %s event: %w", TypeBookmarkCreated, err)
	}
	*e = BookmarkCreated(p)
	return nil
}

// Encode is the payload stored in the stream.
func (e BookmarkCreated) Encode() ([]byte, error) {
	return e.MarshalCBOR()
}

func DecodeBookmarkCreated(data []byte) (BookmarkCreated, error) {
	var e BookmarkCreated
	err := e.UnmarshalCBOR(data)
	return e, err
}
