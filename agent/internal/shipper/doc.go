// Package shipper publishes health monitor results into the key namespace.
//
// Shipper.Ship() is non-blocking: each result is converted to the status
// payload and placed in an in-memory buffer. When the buffer is full the
// oldest payload is evicted so the latest verdict is always preserved.
//
// Shipper.Run() drains the buffer in order, writing each payload to
// /mon/status/<status_num>. While the store is unavailable the pending
// payload is retried with truncated exponential backoff (1s→60s, ±25%
// jitter). Any other put error discards the payload.
package shipper
