// Package observe provides observability primitives for memoized calls.
//
// It is a pure instrumentation library: it never changes what a call
// returns or what the cache stores. Consumers wire a Middleware around
// intercepted calls and install a Recorder on the cache engine to export
// hit, miss and compute telemetry.
package observe
