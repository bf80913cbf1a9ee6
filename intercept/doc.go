// Package intercept routes method calls through a memoizing cache engine.
//
// An operation is memoized only if it is registered in a Table with a
// positive TTL. Calls to unregistered operations bypass the cache and run
// every time. Registered calls are keyed by receiver identity, operation and
// arguments, and their computations may additionally be bounded by a
// timeout and a concurrency limit.
//
// Typed adapters bind a function to a receiver and an operation name:
//
//	query := intercept.Method1(ic, svc, "DataService.QueryData", svc.QueryData)
//	rows, err := query(ctx, "users")
//
// Tables can be built in code or loaded from YAML:
//
//	operations:
//	  DataService.QueryData:
//	    ttl: 5s
//	    timeout: 2s
//	    max_concurrent: 4
//
// Values may reference the environment, as in ttl: ${QUERY_TTL}.
package intercept
