package cache

import (
	"context"
	"time"
)

// ComputeFunc produces the real, uncached result of a call.
type ComputeFunc func(ctx context.Context) (any, error)

// Store maps call keys to their most recent entry.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Store overwrites unconditionally; the last write wins.
// - At most one entry exists per key. Entries are never removed.
type Store interface {
	// Lookup returns the entry for key, if any.
	Lookup(key Key) (Entry, bool)

	// Store records entry for key, replacing any previous entry.
	Store(key Key, entry Entry)

	// Len returns the number of distinct keys held.
	Len() int
}

// MissReason explains why a lookup did not produce a usable value.
type MissReason int

const (
	// MissAbsent means no entry existed for the key.
	MissAbsent MissReason = iota
	// MissExpired means an entry existed but was older than the TTL.
	MissExpired
)

// String returns the string representation of the reason.
func (r MissReason) String() string {
	switch r {
	case MissAbsent:
		return "absent"
	case MissExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Recorder observes engine decisions. It has no influence on caching.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic and must return quickly.
type Recorder interface {
	// Hit is called when a fresh entry is returned.
	Hit(ctx context.Context, key Key)

	// Miss is called when the engine has to compute.
	Miss(ctx context.Context, key Key, reason MissReason)

	// Computed is called after the computation returns.
	Computed(ctx context.Context, key Key, d time.Duration, err error)

	// Shared is called when a caller received the result of a computation
	// started by another caller.
	Shared(ctx context.Context, key Key)
}

type noopRecorder struct{}

func (noopRecorder) Hit(context.Context, Key)                           {}
func (noopRecorder) Miss(context.Context, Key, MissReason)              {}
func (noopRecorder) Computed(context.Context, Key, time.Duration, error) {}
func (noopRecorder) Shared(context.Context, Key)                        {}
