// Package health turns the verdict statusmon publishes at /mon/status/<n>
// into a standard gRPC health service.
//
// Reporter.Update is fed from board updates. The named service reports
// SERVING while the latest verdict says the telescope is observing and the
// verdict is younger than the stale limit, NOT_SERVING otherwise. The empty
// service name always reports SERVING while the process is up.
//
// ParseVerdict decodes the payload and is shared with the REST API.
package health
