// Package cache provides TTL memoization for method calls.
//
// A call is identified by a Key built from the receiver, an operation name and
// the ordered argument list. The Engine returns the stored result for a Key
// while it is fresh and otherwise runs the supplied computation, storing the
// result only when it succeeds.
//
// Freshness is checked on read. Nothing is evicted in the background and a
// stale entry stays in the Store until the same Key is requested again.
//
// Concurrent misses for one Key are coalesced so that only one computation
// runs at a time; WithoutCoalescing restores independent computations with
// last-write-wins storage.
package cache
