package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dsa110/mnc/pkg/calstatus"
	"github.com/dsa110/mnc/pkg/cnf"
	"github.com/dsa110/mnc/pkg/store"
)

// cnfList returns GET /api/v1/cnf: the known subsystem names.
func (h *Handler) cnfList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, CnfListResponse{
		Remote:     h.opts.Cnf.Remote(),
		Subsystems: h.opts.Cnf.List(),
	})
}

// cnfGet returns GET /api/v1/cnf/{name}: one subsystem's configuration.
func (h *Handler) cnfGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/cnf/")
	if name == "" {
		h.cnfList(w, r)
		return
	}

	key, err := h.opts.Cnf.Key(name)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	v, err := h.opts.Cnf.Get(r.Context(), name)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, CnfResponse{Name: name, Key: key, Value: v})
}

// limits returns GET /api/v1/limits/{subsystem}/{id}: the fields of
// /mon/{subsystem}/{id} outside the ranges in cnf minmax_{subsystem}.
func (h *Handler) limits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/limits/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		jsonErr(w, http.StatusBadRequest, "want /api/v1/limits/{subsystem}/{id}")
		return
	}
	subsystem, id := parts[0], parts[1]

	limitsName := "minmax_" + subsystem
	lim, err := h.opts.Cnf.Get(r.Context(), limitsName)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}

	key := store.MonKey(subsystem, id)
	point, ok, err := h.point(r.Context(), key)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "no monitor data at "+key)
		return
	}

	resp := LimitsResponse{Key: key, Limits: limitsName, Violations: []ViolationResponse{}}
	for _, v := range cnf.CheckLimits(lim, point) {
		resp.Violations = append(resp.Violations, ViolationResponse{
			Field: v.Name, Value: v.Value, Min: v.Min, Max: v.Max,
		})
	}
	resp.InRange = len(resp.Violations) == 0
	jsonResp(w, http.StatusOK, resp)
}

// calstatus decodes and encodes calibration status words.
//
//	GET /api/v1/calstatus/{code}            decode; code may be decimal or 0x hex
//	GET /api/v1/calstatus?names=a,b&code=N  set the named bits on N (default 0)
func (h *Handler) calstatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/v1/calstatus"), "/")
	if raw == "" {
		raw = r.URL.Query().Get("code")
	}
	var code calstatus.Code
	if raw != "" {
		n, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("code %q is not a 32-bit unsigned integer", raw))
			return
		}
		code = calstatus.Code(n)
	}

	var unknown []string
	if q := r.URL.Query().Get("names"); q != "" {
		names := strings.Split(q, ",")
		code = calstatus.Encode(code, names...)
		unknown = calstatus.Unknown(names...)
	}

	names := calstatus.Decode(code)
	if names == nil {
		names = []string{}
	}
	jsonResp(w, http.StatusOK, CalStatusResponse{
		Code:    uint32(code),
		Hex:     fmt.Sprintf("0x%08x", uint32(code)),
		Names:   names,
		Unknown: unknown,
	})
}
