package intercept

import "errors"

// Registration errors.
var (
	// ErrEmptyOperation indicates an empty operation identifier.
	ErrEmptyOperation = errors.New("intercept: operation is required")

	// ErrInvalidTTL indicates a non-positive TTL. Operations that should not
	// be cached are left unregistered instead.
	ErrInvalidTTL = errors.New("intercept: ttl must be positive")

	// ErrInvalidRule indicates a negative timeout or concurrency limit.
	ErrInvalidRule = errors.New("intercept: invalid rule")

	// ErrDuplicateOperation indicates an operation registered twice.
	ErrDuplicateOperation = errors.New("intercept: operation already registered")

	// ErrMissingEnv indicates a table referencing unset environment variables.
	ErrMissingEnv = errors.New("intercept: missing environment variables")
)

// Call errors.
var (
	// ErrResultType indicates a cached value whose type does not match the
	// adapter's result type, typically two adapters sharing one operation.
	ErrResultType = errors.New("intercept: unexpected result type")
)
