package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dsa110/mnc/pkg/types"
)

// Service is the gRPC health service name carrying the observing verdict.
const Service = "dsa110.statusmon"

// Reporter maps verdicts onto a grpc health server.
type Reporter struct {
	srv   *health.Server
	key   string
	stale time.Duration
	now   func() time.Time
	log   *slog.Logger

	mu      sync.RWMutex
	latest  Verdict
	have    bool
	serving healthpb.HealthCheckResponse_ServingStatus
}

// NewReporter creates a Reporter that follows the verdict at key.
// Until a verdict arrives the service reports NOT_SERVING.
func NewReporter(key string, stale time.Duration, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	r := &Reporter{
		srv:     health.NewServer(),
		key:     key,
		stale:   stale,
		now:     time.Now,
		log:     log,
		serving: healthpb.HealthCheckResponse_NOT_SERVING,
	}
	r.srv.SetServingStatus(Service, r.serving)
	return r
}

// Register adds the health service to gs.
func (r *Reporter) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, r.srv)
}

// Server exposes the underlying health server.
func (r *Reporter) Server() healthpb.HealthServer { return r.srv }

// Key returns the store key the reporter follows.
func (r *Reporter) Key() string { return r.key }

// Update applies a new payload if key is the followed verdict key. Payloads
// that cannot be decoded are logged and ignored.
func (r *Reporter) Update(key string, v types.Value) {
	if key != r.key {
		return
	}
	verdict, err := ParseVerdict(v)
	if err != nil {
		r.log.Warn("health: ignoring undecodable verdict", "key", key, "err", err)
		return
	}
	r.mu.Lock()
	r.latest = verdict
	r.have = true
	r.mu.Unlock()

	r.log.Debug("health: verdict received",
		"key", key, "status", verdict.Status, "mjd", verdict.MJD, "skipped", verdict.Skipped)
	r.refresh()
}

// Latest returns the most recent verdict and whether one has arrived.
func (r *Reporter) Latest() (Verdict, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.have
}

// Serving returns the status the named service currently reports.
func (r *Reporter) Serving() healthpb.HealthCheckResponse_ServingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.serving
}

// refresh recomputes the serving status from the latest verdict and its age.
func (r *Reporter) refresh() {
	r.mu.Lock()
	want := healthpb.HealthCheckResponse_NOT_SERVING
	if r.have && r.latest.Observing && !r.latest.Stale(r.now(), r.stale) {
		want = healthpb.HealthCheckResponse_SERVING
	}
	changed := want != r.serving
	r.serving = want
	if changed {
		// Held under mu: the health server must apply changes in r.serving order.
		r.srv.SetServingStatus(Service, want)
	}
	r.mu.Unlock()

	if changed {
		r.log.Info("health: serving status changed", "service", Service, "status", want.String())
	}
}

// Run re-checks staleness periodically so a silent monitor turns the service
// NOT_SERVING. Blocks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	interval := r.stale / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.refresh()
		}
	}
}

// Shutdown sets every service to NOT_SERVING ahead of a graceful stop.
func (r *Reporter) Shutdown() { r.srv.Shutdown() }
