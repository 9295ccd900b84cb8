package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dsa110/mnc/pkg/cnf"
	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
	"github.com/dsa110/mnc/server/internal/alerts"
	"github.com/dsa110/mnc/server/internal/board"
	"github.com/dsa110/mnc/server/internal/health"
)

// KV is the part of store.Store the API reads and writes.
type KV interface {
	Get(ctx context.Context, key string, opts ...store.GetOption) (types.Value, bool, error)
	Put(ctx context.Context, key string, v types.Value, opts ...store.PutOption) error
	Delete(ctx context.Context, key string, recursive bool) (int64, error)
	List(ctx context.Context, prefix string, opts ...store.GetOption) ([]store.Entry, error)
}

// Options wires the handler to its data sources. Store, Board and Cnf are
// required; Alerts may be nil.
type Options struct {
	Store  KV
	Board  *board.Board
	Cnf    *cnf.Registry
	Alerts *alerts.Engine

	// StatusKey is the verdict key served by /api/v1/health.
	StatusKey string
	// StaleAfter is the verdict age past which health reports "stale".
	StaleAfter time.Duration

	Logger *slog.Logger
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time
	mux  *http.ServeMux
}

// maxBody caps PUT payloads.
const maxBody = 1 << 20

// New creates a Handler and registers all routes.
func New(opts Options) *Handler {
	h := &Handler{opts: opts, log: opts.Logger, now: time.Now, mux: http.NewServeMux()}
	if h.log == nil {
		h.log = slog.Default()
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/keys/", h.keys) // subtree: extracts {key}
	h.mux.HandleFunc("/api/v1/list", h.list)
	h.mux.HandleFunc("/api/v1/board", h.board)
	h.mux.HandleFunc("/api/v1/cnf", h.cnfList)
	h.mux.HandleFunc("/api/v1/cnf/", h.cnfGet)
	h.mux.HandleFunc("/api/v1/limits/", h.limits)
	h.mux.HandleFunc("/api/v1/calstatus", h.calstatus)
	h.mux.HandleFunc("/api/v1/calstatus/", h.calstatus)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: the latest observing verdict.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.now()
	resp := HealthResponse{Key: h.opts.StatusKey, State: "unknown"}
	if h.opts.Alerts != nil {
		resp.AlertCount = h.opts.Alerts.Firing()
	}

	v, found, err := h.point(r.Context(), h.opts.StatusKey)
	if err != nil {
		h.log.Warn("api: read verdict", "key", h.opts.StatusKey, "err", err)
	}
	var verdict health.Verdict
	ok := false
	if found {
		verdict, err = health.ParseVerdict(v)
		if err != nil {
			h.log.Warn("api: undecodable verdict", "key", h.opts.StatusKey, "err", err)
		} else {
			ok = true
		}
	}

	resp.Diagnostics = computeDiagnostics(verdict, ok, now, h.opts.StaleAfter)
	if !ok {
		resp.Criteria = criteria(health.Verdict{Criteria: [3]int{-1, -1, -1}})
		jsonResp(w, http.StatusOK, resp)
		return
	}

	status := verdict.Status
	resp.Status = &status
	resp.Observing = verdict.Observing
	resp.Criteria = criteria(verdict)
	resp.MJD = verdict.MJD
	if !verdict.Time.IsZero() {
		resp.Time = verdict.Time.UTC().Format(time.RFC3339)
	}
	if age, known := verdict.Age(now); known {
		secs := age.Seconds()
		resp.AgeSeconds = &secs
	}
	resp.Stale = verdict.Stale(now, h.opts.StaleAfter)

	switch {
	case resp.Stale:
		resp.State = "stale"
	case verdict.Observing:
		resp.State = "observing"
	default:
		resp.State = "not_observing"
	}
	jsonResp(w, http.StatusOK, resp)
}

// alerts returns GET /api/v1/alerts: firing alerts plus those resolved in
// the past hour.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := AlertsResponse{Alerts: []*alerts.Alert{}}
	if h.opts.Alerts != nil {
		resp.Alerts = h.opts.Alerts.Active()
		resp.Firing = h.opts.Alerts.Firing()
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

// point reads key from the board, falling back to the store for keys the
// board has not seen or holds only stale.
func (h *Handler) point(ctx context.Context, key string) (types.Value, bool, error) {
	if e, ok := h.opts.Board.Get(key); ok && h.opts.Board.Fresh(e) {
		return e.Value, true, nil
	}
	return h.opts.Store.Get(ctx, key, store.AllowNonFinite(true))
}

func criteria(v health.Verdict) []CriterionResponse {
	skipped := make(map[string]bool, len(v.Skipped))
	for _, s := range v.Skipped {
		skipped[s] = true
	}
	out := make([]CriterionResponse, len(health.CriterionNames))
	for i, name := range health.CriterionNames {
		res := "unknown"
		switch {
		case skipped[name]:
			res = "skipped"
		case v.Criteria[i] == 1:
			res = "pass"
		case v.Criteria[i] == 0:
			res = "fail"
		}
		out[i] = CriterionResponse{Name: name, Result: res}
	}
	return out
}

// statusFor maps store and registry errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrNonFinite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cnf.ErrUnknownSubsystem), errors.Is(err, cnf.ErrNoValue):
		return http.StatusNotFound
	default:
		var pe *types.ParseError
		if errors.As(err, &pe) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	}
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
