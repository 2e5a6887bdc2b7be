// Package feed provides the live, ordered change feed that clients watch:
// a snapshot of the current collection followed by incremental
// add/modify/remove events, backed by a Redis stream.
package feed

import (
	"encoding/json"
	"fmt"
)

// Kind is the type of a change event.
type Kind string

const (
	Added    Kind = "ADDED"
	Modified Kind = "MODIFIED"
	Removed  Kind = "REMOVED"
)

// ParseKind accepts the three change kinds.
func ParseKind(value string) (Kind, bool) {
	switch k := Kind(value); k {
	case Added, Modified, Removed:
		return k, true
	default:
		return "", false
	}
}

// Change is one event on the feed. Data is the record snapshot as JSON.
type Change struct {
	Kind     Kind
	ID       string
	Data     json.RawMessage
	StreamID string
}

// NewChange encodes record as the change payload.
func NewChange(kind Kind, id string, record any) (Change, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("marshal %s change %s: %w", kind, id, err)
	}
	return Change{Kind: kind, ID: id, Data: data}, nil
}

// Batch is what a subscriber receives per delivery. A batch either carries
// changes or a transport error, never both.
type Batch struct {
	Changes  []Change
	Snapshot bool
	Err      error
}
