package bookmark

import "strings"

// Outcome classifies the reconciliation of one incoming bookmark against the
// stored one. ServerUpdated and ClientStale may both be set.
type Outcome uint8

const (
	// Created means nothing was stored before; the incoming bookmark is stored verbatim.
	Created Outcome = 1 << iota
	// ServerUpdated means the merge differs from what was stored and must be persisted.
	ServerUpdated
	// ClientStale means the merge differs from what the client sent and must be returned.
	ClientStale
)

// Unchanged means the merge equals both the stored and the incoming bookmark.
const Unchanged Outcome = 0

func (o Outcome) Has(flag Outcome) bool { return o&flag != 0 }

// NeedsWrite reports whether the merged bookmark must be persisted.
func (o Outcome) NeedsWrite() bool { return o.Has(Created) || o.Has(ServerUpdated) }

func (o Outcome) String() string {
	if o == Unchanged {
		return "unchanged"
	}
	var parts []string
	if o.Has(Created) {
		parts = append(parts, "created")
	}
	if o.Has(ServerUpdated) {
		parts = append(parts, "server_updated")
	}
	if o.Has(ClientStale) {
		parts = append(parts, "client_stale")
	}
	return strings.Join(parts, "|")
}

// Reconcile merges incoming into existing (nil when nothing is stored) and
// classifies the result. The returned bookmark is what storage should hold
// afterwards.
func Reconcile(existing *Bookmark, incoming Bookmark) (Bookmark, Outcome) {
	incoming = incoming.Normalized()
	if existing == nil {
		return incoming, Created
	}

	stored := existing.Normalized()
	merged := Merge(stored, incoming)

	outcome := Unchanged
	if !merged.Equal(stored) {
		outcome |= ServerUpdated
	}
	if !merged.Equal(incoming) {
		outcome |= ClientStale
	}
	return merged, outcome
}
