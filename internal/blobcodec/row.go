// Package blobcodec implements the row <-> JSON blob codec of spec §4.2:
// deterministic serialization so byte-equal rows always produce
// byte-equal blobs, and strict key-match verification on read.
package blobcodec

import (
	"time"
)

// Row is the in-memory representation of a stored document (spec §3):
// a key, a monotonic version, creation/update timestamps, and an ordered
// mapping of column name to scalar/JSON value.
type Row struct {
	Key       string
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	Columns   map[string]any
}

// Clone returns an owned deep-enough copy of r — the repository engine
// hands these out to callers per spec §3 "Lifecycle and ownership": a
// caller mutating a returned row must never affect the store.
func (r Row) Clone() Row {
	cols := make(map[string]any, len(r.Columns))
	for k, v := range r.Columns {
		cols[k] = cloneValue(v)
	}
	return Row{Key: r.Key, Version: r.Version, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Columns: cols}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return t
	}
}
