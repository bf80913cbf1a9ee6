package intercept

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Rule configures how a registered operation is memoized.
type Rule struct {
	// TTL is how long a computed value stays fresh. Must be positive.
	TTL time.Duration

	// Timeout bounds each computation. Zero means unbounded.
	Timeout time.Duration

	// MaxConcurrent limits concurrent computations of the operation.
	// Zero means unlimited.
	MaxConcurrent int

	// MaxWait is how long a computation waits for a free slot once
	// MaxConcurrent are running. Zero fails at once.
	MaxWait time.Duration
}

// Validate reports whether the rule can be registered.
func (r Rule) Validate() error {
	if r.TTL <= 0 {
		return fmt.Errorf("%w, got %v", ErrInvalidTTL, r.TTL)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidRule, r.Timeout)
	}
	if r.MaxConcurrent < 0 {
		return fmt.Errorf("%w: negative max_concurrent %d", ErrInvalidRule, r.MaxConcurrent)
	}
	if r.MaxWait < 0 {
		return fmt.Errorf("%w: negative max_wait %v", ErrInvalidRule, r.MaxWait)
	}
	if r.MaxWait > 0 && r.MaxConcurrent == 0 {
		return fmt.Errorf("%w: max_wait requires max_concurrent", ErrInvalidRule)
	}
	return nil
}

// Table maps operation identifiers to memoization rules.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Registration is append-only; a registered rule never changes.
type Table struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{rules: make(map[string]Rule)}
}

// Register adds a rule for op.
func (t *Table) Register(op string, rule Rule) error {
	if op == "" {
		return ErrEmptyOperation
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rules[op]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, op)
	}
	t.rules[op] = rule
	return nil
}

// MustRegister is like Register but panics on error.
func (t *Table) MustRegister(op string, rule Rule) *Table {
	if err := t.Register(op, rule); err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the rule registered for op.
func (t *Table) Lookup(op string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rules[op]
	return r, ok
}

// Ops returns the registered operations in sorted order.
func (t *Table) Ops() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]string, 0, len(t.rules))
	for op := range t.rules {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}
