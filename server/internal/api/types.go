package api

import (
	"github.com/dsa110/mnc/pkg/types"
	"github.com/dsa110/mnc/server/internal/alerts"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is one of: observing | not_observing | stale | unknown.
	State      string              `json:"state"`
	Observing  bool                `json:"observing"`
	Key        string              `json:"key"`
	Status     *int                `json:"status,omitempty"`
	Criteria   []CriterionResponse `json:"criteria"`
	MJD        float64             `json:"mjd,omitempty"`
	Time       string              `json:"time,omitempty"` // RFC3339
	AgeSeconds *float64            `json:"age_seconds,omitempty"`
	Stale      bool                `json:"stale"`
	AlertCount int                 `json:"alert_count"`
	// Diagnostics are ordered critical first, then warnings, then info.
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// CriterionResponse is one criterion within a verdict.
type CriterionResponse struct {
	Name string `json:"name"`
	// Result is one of: pass | fail | skipped | unknown.
	Result string `json:"result"`
}

// EntryResponse is one key in GET /api/v1/list.
type EntryResponse struct {
	Key      string      `json:"key"`
	Revision int64       `json:"revision"`
	Value    types.Value `json:"value"`
}

// ListResponse is the payload for GET /api/v1/list.
type ListResponse struct {
	Prefix  string          `json:"prefix"`
	Entries []EntryResponse `json:"entries"`
	// Errors lists keys that could not be decoded; Entries holds the rest.
	Errors []string `json:"errors,omitempty"`
}

// BoardEntryResponse is one cached monitor point in GET /api/v1/board.
type BoardEntryResponse struct {
	Key       string      `json:"key"`
	Value     types.Value `json:"value"`
	UpdatedAt string      `json:"updated_at"` // RFC3339
}

// BoardResponse is the payload for GET /api/v1/board.
type BoardResponse struct {
	Prefix      string               `json:"prefix"`
	Entries     []BoardEntryResponse `json:"entries"`
	GeneratedAt string               `json:"generated_at"` // RFC3339
}

// PutResponse is returned by PUT /api/v1/keys/{key}.
type PutResponse struct {
	Key string `json:"key"`
	OK  bool   `json:"ok"`
}

// DeleteResponse is returned by DELETE /api/v1/keys/{key}.
type DeleteResponse struct {
	Key     string `json:"key"`
	Deleted int64  `json:"deleted"`
}

// CnfListResponse is the payload for GET /api/v1/cnf.
type CnfListResponse struct {
	Remote     bool     `json:"remote"`
	Subsystems []string `json:"subsystems"`
}

// CnfResponse is the payload for GET /api/v1/cnf/{name}.
type CnfResponse struct {
	Name  string      `json:"name"`
	Key   string      `json:"key"`
	Value types.Value `json:"value"`
}

// ViolationResponse is one out-of-range monitor point field.
type ViolationResponse struct {
	Field string      `json:"field"`
	Value types.Value `json:"value"`
	Min   types.Value `json:"min"`
	Max   types.Value `json:"max"`
}

// LimitsResponse is the payload for GET /api/v1/limits/{subsystem}/{id}.
type LimitsResponse struct {
	Key        string              `json:"key"`
	Limits     string              `json:"limits"`
	InRange    bool                `json:"in_range"`
	Violations []ViolationResponse `json:"violations"`
}

// CalStatusResponse is the payload for GET /api/v1/calstatus.
type CalStatusResponse struct {
	Code    uint32   `json:"code"`
	Hex     string   `json:"hex"`
	Names   []string `json:"names"`
	Unknown []string `json:"unknown,omitempty"`
}

// AlertsResponse is the payload for GET /api/v1/alerts.
type AlertsResponse struct {
	Firing int             `json:"firing"`
	Alerts []*alerts.Alert `json:"alerts"`
}

type errorResponse struct {
	Error string `json:"error"`
}
