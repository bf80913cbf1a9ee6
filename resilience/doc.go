// Package resilience guards the computations a memoizing cache runs on a
// miss.
//
// A cached operation can be slow, can hang, or can be invoked by many
// callers at once when its entries expire together. The guards in this
// package bound that cost without changing what gets cached: a guarded
// computation that fails is still a failure, and failures are never
// stored.
//
// # Guards
//
//   - Timeout: bounds how long a single computation may run. The
//     computation receives a derived context that is cancelled at the
//     deadline.
//
//   - Bulkhead: limits how many computations of one operation may run at
//     the same time, optionally waiting a bounded time for a slot.
//
// # Usage
//
// Guards compose through a Guard:
//
//	g := resilience.NewGuard(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
//	        MaxConcurrent: 4,
//	    })),
//	    resilience.WithTimeout(2*time.Second),
//	)
//
//	v, err := g.Execute(ctx, func(ctx context.Context) (any, error) {
//	    return queryBackend(ctx)
//	})
package resilience
