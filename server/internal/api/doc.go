// Package api implements the HTTP REST API for mncserver.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                     observing verdict, criteria, age, diagnostics
//	GET    /api/v1/keys/{key}                 one key; ?allow_non_finite=true keeps NaN tokens
//	PUT    /api/v1/keys/{key}                 write a JSON body; ?strict=false accepts NaN
//	DELETE /api/v1/keys/{key}                 delete; ?recursive=true removes the subtree
//	GET    /api/v1/list?prefix=               every key under prefix, read from the store
//	GET    /api/v1/board?prefix=              live monitor points from the in-memory board
//	GET    /api/v1/cnf                        known subsystem names
//	GET    /api/v1/cnf/{name}                 one subsystem's configuration
//	GET    /api/v1/limits/{subsystem}/{id}    monitor point fields outside minmax_{subsystem}
//	GET    /api/v1/calstatus/{code}           decode a calibration status word
//	GET    /api/v1/calstatus?names=a,b        encode condition names
//	GET    /api/v1/alerts                     firing and recently resolved alerts
//
// All endpoints respond with Content-Type: application/json and return 405
// for unsupported methods. Store outages map to 503, non-finite or malformed
// payloads to 422, unknown keys and subsystems to 404.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
