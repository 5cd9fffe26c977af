// Package remote is the remote profile document store: one record per
// authenticated identity, with one-shot reads, a live change feed, and
// create/merge writes.
package remote

import (
	"context"
	"time"

	"github.com/roach88/profilesync/internal/value"
)

// Backend operation names used in BackendError.Op.
const (
	OpRead      = "read"
	OpSubscribe = "subscribe"
	OpCreate    = "create"
	OpUpdate    = "update"
)

// Record is a remote profile document.
//
// Fields holds plain JSON-shaped data: strings, float64 or int numbers,
// bools, nil, []any and map[string]any. Timestamps written by the backend
// arrive as time.Time or RFC 3339 strings depending on the backend.
type Record struct {
	ID     string
	Fields map[string]any
}

// Backend is the remote document store boundary.
type Backend interface {
	// ReadOnce fetches the record. found is false when it does not exist.
	ReadOnce(ctx context.Context, id string) (rec Record, found bool, err error)

	// Subscribe delivers the current state of the record and then every
	// committed change, in commit order. exists is false while the record is
	// absent. A feed failure is reported once through onError and ends the
	// feed. unsubscribe stops delivery and is safe to call more than once.
	Subscribe(ctx context.Context, id string, onChange func(rec Record, exists bool), onError func(error)) (unsubscribe func())

	// Create writes a new record. Returns ErrAlreadyExists if one exists.
	Create(ctx context.Context, id string, fields map[string]any) error

	// Update merges partial into an existing record. Returns ErrNotFound if
	// the record does not exist.
	Update(ctx context.Context, id string, partial map[string]any) error
}

// ResolveServerTimes returns a copy of fields with every unresolved
// value.ServerTime, at any depth, replaced by now. Resolved server times are
// replaced by their instant.
func ResolveServerTimes(fields map[string]any, now time.Time) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = resolve(v, now)
	}
	return out
}

func resolve(v any, now time.Time) any {
	switch val := v.(type) {
	case value.ServerTime:
		if val.Resolved() {
			return val.At
		}
		return now
	case map[string]any:
		return ResolveServerTimes(val, now)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = resolve(elem, now)
		}
		return out
	default:
		return v
	}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
