package cache

import "time"

// Entry is a stored result and the time it was produced.
// Entries are immutable; a recomputation stores a new Entry.
type Entry struct {
	value     any
	createdAt time.Time
}

// NewEntry creates an entry for value produced at createdAt.
func NewEntry(value any, createdAt time.Time) Entry {
	return Entry{value: value, createdAt: createdAt}
}

// Value returns the stored result.
func (e Entry) Value() any { return e.value }

// CreatedAt returns when the result was produced.
func (e Entry) CreatedAt() time.Time { return e.createdAt }

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.createdAt)
}

// Fresh reports whether the entry may still be served at now.
// A ttl of zero or less is never fresh.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return e.Age(now) <= ttl
}
