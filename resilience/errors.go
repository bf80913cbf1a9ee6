package resilience

import "errors"

// Sentinel errors for guarded computations.
var (
	// ErrBulkheadFull is returned when no concurrency slot is available.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when a computation exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")
)
