package cache

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Engine memoizes computations by Key for a caller-supplied TTL.
//
// Contract:
// - Concurrency: safe for concurrent use; the Store is the only shared state.
// - Errors: computation errors are returned unchanged and never stored.
// - Context: ctx is handed to the computation untouched. A caller waiting
// for a coalesced computation returns ctx.Err() as soon as its own ctx
// ends, and recomputes if the computation failed only because the ctx of
// the caller that started it ended.
type Engine struct {
	store    Store
	now      func() time.Time
	recorder Recorder
	coalesce bool
	group    singleflight.Group
	stats    counters
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the backing store. Default: NewMemoryStore().
func WithStore(s Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithClock sets the time source used for timestamps and freshness checks.
// Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRecorder sets the recorder notified of hits, misses and computations.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithoutCoalescing disables single-flight. Concurrent misses for the same
// key then compute independently and the last successful write wins.
func WithoutCoalescing() Option {
	return func(e *Engine) {
		e.coalesce = false
	}
}

// NewEngine creates an engine. By default it uses a MemoryStore, the wall
// clock, a no-op recorder and coalesces concurrent misses per key.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		store:    NewMemoryStore(),
		now:      time.Now,
		recorder: noopRecorder{},
		coalesce: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's backing store.
func (e *Engine) Store() Store {
	return e.store
}

// Get returns the cached value for key if it is no older than ttl.
// Otherwise it calls compute; a successful result is stored with the current
// time and returned, a failure is returned as is and leaves the store
// untouched. A ttl <= 0 always computes.
func (e *Engine) Get(ctx context.Context, key Key, ttl time.Duration, compute ComputeFunc) (any, error) {
	if v, ok := e.lookup(ctx, key, ttl); ok {
		return v, nil
	}
	if !e.coalesce {
		return e.compute(ctx, key, compute)
	}

	for {
		v, retry, err := e.join(ctx, key, ttl, compute)
		if !retry {
			return v, err
		}
	}
}

// join waits for the flight computing key, starting one if none is running.
// Every caller waits on its own ctx. retry is set when the flight failed only
// because the context of the caller that started it ended while ctx is still
// live.
func (e *Engine) join(ctx context.Context, key Key, ttl time.Duration, compute ComputeFunc) (v any, retry bool, err error) {
	owner := new(int)
	ch := e.group.DoChan(flightKey(key), func() (any, error) {
		// Another flight may have stored a fresh value since our lookup.
		if entry, ok := e.store.Lookup(key); ok && entry.Fresh(e.now(), ttl) {
			return flight{owner: owner, key: key, value: entry.Value()}, nil
		}
		v, err := e.compute(ctx, key, compute)
		return flight{owner: owner, key: key, value: v}, err
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	f, _ := res.Val.(flight)
	if f.owner == owner {
		return f.value, false, res.Err
	}
	if !f.key.Equal(key) {
		// Different call that collided on hash; compute our own result.
		v, err := e.compute(ctx, key, compute)
		return v, false, err
	}
	if isContextErr(res.Err) && ctx.Err() == nil {
		return nil, true, nil
	}
	e.stats.shared.Add(1)
	e.recorder.Shared(ctx, key)
	return f.value, false, res.Err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// lookup reports a fresh hit and records the outcome.
func (e *Engine) lookup(ctx context.Context, key Key, ttl time.Duration) (any, bool) {
	entry, ok := e.store.Lookup(key)
	if ok && entry.Fresh(e.now(), ttl) {
		e.stats.hits.Add(1)
		e.recorder.Hit(ctx, key)
		return entry.Value(), true
	}

	reason := MissAbsent
	if ok {
		reason = MissExpired
		e.stats.expired.Add(1)
	}
	e.stats.misses.Add(1)
	e.recorder.Miss(ctx, key, reason)
	return nil, false
}

func (e *Engine) compute(ctx context.Context, key Key, compute ComputeFunc) (any, error) {
	start := e.now()
	v, err := compute(ctx)
	done := e.now()

	e.stats.computes.Add(1)
	e.recorder.Computed(ctx, key, done.Sub(start), err)
	if err != nil {
		e.stats.errors.Add(1)
		return v, err
	}

	e.store.Store(key, NewEntry(v, done))
	return v, nil
}

// flight carries the result of a coalesced computation along with the key
// that produced it and the caller that started it.
type flight struct {
	owner *int
	key   Key
	value any
}

func flightKey(key Key) string {
	return strconv.FormatUint(key.Hash(), 16)
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Hits     int64
	Misses   int64
	Expired  int64
	Computes int64
	Errors   int64
	Shared   int64
	Entries  int
}

type counters struct {
	hits     atomic.Int64
	misses   atomic.Int64
	expired  atomic.Int64
	computes atomic.Int64
	errors   atomic.Int64
	shared   atomic.Int64
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Hits:     e.stats.hits.Load(),
		Misses:   e.stats.misses.Load(),
		Expired:  e.stats.expired.Load(),
		Computes: e.stats.computes.Load(),
		Errors:   e.stats.errors.Load(),
		Shared:   e.stats.shared.Load(),
		Entries:  e.store.Len(),
	}
}
