// Package store provides typed access to the coordination service that holds
// the /mon, /cmd and /cnf key namespace.
//
// A Store wraps a Backend (etcd in production, Memory for tests and dry runs)
// and converts between types.Value and the JSON bytes kept under each key.
// Writes are strict by default: a value holding NaN or ±Inf is rejected
// before the backend is touched. Reads are strict by default as well and
// report a *types.ParseError for the NaN/Infinity tokens unless the caller
// opts in with AllowNonFinite.
//
// Watches are delivered by one goroutine per subscription, so callbacks for a
// single subscription observe changes in revision order while separate
// subscriptions run concurrently. When the backend stream fails the
// subscription reconnects from the last delivered revision according to its
// WatchPolicy, or terminates and reports ErrWatchTerminated through Err.
package store
