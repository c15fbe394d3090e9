// Package kv implements the identity & persistence substrate: a durable
// key-value slot holding a handful of fixed string keys (the serialized
// database document plus session markers). Implementations cover sqlite, a
// lock-guarded JSON file, and process memory. The Fallback wrapper degrades
// from durable to memory when the durable slot fails.
package kv

import "context"

// Slot is a durable (or durable-ish) string key-value store.
//
// Contract:
//   - Get returns (value, true, nil) when the key exists and ("", false, nil)
//     when it does not; the error is reserved for storage failures.
//   - Set creates or overwrites; last write wins.
//   - Delete of a missing key is not an error.
//
// Implementations are safe for use from a single goroutine; cross-process
// coordination (two tabs, two agents) is explicitly last-write-wins.
type Slot interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Status describes the health of a fallback-wrapped slot.
type Status int

const (
	// StatusDurable means reads and writes are hitting the durable slot.
	StatusDurable Status = iota
	// StatusDegraded means the durable slot failed and traffic is being
	// served from process memory for the rest of the process lifetime.
	StatusDegraded
)

func (s Status) String() string {
	if s == StatusDegraded {
		return "degraded"
	}
	return "durable"
}
