package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/dsa110/mnc/pkg/store"
	"github.com/dsa110/mnc/pkg/types"
)

// keys serves GET, PUT and DELETE on /api/v1/keys/{key}. The store key is
// the path after /api/v1/keys, so /api/v1/keys/mon/ant/3 is /mon/ant/3.
//
// Query parameters:
//
//	GET    allow_non_finite=true  return NaN and Infinity as bare tokens
//	PUT    strict=false           accept and store non-finite numbers
//	DELETE recursive=true         delete every key under the prefix
func (h *Handler) keys(w http.ResponseWriter, r *http.Request) {
	key := "/" + strings.TrimPrefix(r.URL.Path, "/api/v1/keys/")
	if key == "/" {
		jsonErr(w, http.StatusBadRequest, "key is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getKey(w, r, key)
	case http.MethodPut:
		h.putKey(w, r, key)
	case http.MethodDelete:
		h.deleteKey(w, r, key)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) getKey(w http.ResponseWriter, r *http.Request, key string) {
	allow, err := boolParam(r, "allow_non_finite", false)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	v, ok, err := h.opts.Store.Get(r.Context(), key, store.AllowNonFinite(allow))
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, "key not found")
		return
	}

	// Encoded by hand so that lenient reads keep their NaN tokens.
	body, err := types.Marshal(types.Object(map[string]types.Value{
		"key":   types.String(key),
		"value": v,
	}), allow)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(body, '\n')) //nolint:errcheck
}

func (h *Handler) putKey(w http.ResponseWriter, r *http.Request, key string) {
	strict, err := boolParam(r, "strict", true)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxBody {
		jsonErr(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	v, err := types.Unmarshal(body, !strict)
	if err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.opts.Store.Put(r.Context(), key, v, store.Strict(strict)); err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	h.log.Info("api: key written", "key", key, "strict", strict, "remote", r.RemoteAddr)
	jsonResp(w, http.StatusOK, PutResponse{Key: key, OK: true})
}

func (h *Handler) deleteKey(w http.ResponseWriter, r *http.Request, key string) {
	recursive, err := boolParam(r, "recursive", false)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.opts.Store.Delete(r.Context(), key, recursive)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	h.log.Info("api: key deleted", "key", key, "recursive", recursive, "deleted", n, "remote", r.RemoteAddr)
	jsonResp(w, http.StatusOK, DeleteResponse{Key: key, Deleted: n})
}

// list returns GET /api/v1/list?prefix=: every key under prefix read from
// the store. Keys that fail to decode are reported in errors alongside the
// rest. Non-finite numbers are returned as null.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	prefix, ok := prefixParam(w, r)
	if !ok {
		return
	}

	entries, err := h.opts.Store.List(r.Context(), prefix, store.AllowNonFinite(true))
	if err != nil && entries == nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	resp := ListResponse{Prefix: prefix, Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, EntryResponse{Key: e.Key, Revision: e.Revision, Value: e.Value})
	}
	for _, e := range multierr.Errors(err) {
		resp.Errors = append(resp.Errors, e.Error())
	}
	jsonResp(w, http.StatusOK, resp)
}

// board returns GET /api/v1/board?prefix=: the live cached monitor points.
func (h *Handler) board(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	prefix, ok := prefixParam(w, r)
	if !ok {
		return
	}

	entries := h.opts.Board.List(prefix)
	resp := BoardResponse{
		Prefix:      prefix,
		Entries:     make([]BoardEntryResponse, 0, len(entries)),
		GeneratedAt: h.now().UTC().Format(time.RFC3339),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, BoardEntryResponse{
			Key:       e.Key,
			Value:     e.Value,
			UpdatedAt: e.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, resp)
}

// prefixParam reads ?prefix=, defaulting to /mon/. It writes a 400 and
// returns false for prefixes that are not absolute.
func prefixParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = store.MonPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		jsonErr(w, http.StatusBadRequest, `prefix must start with "/"`)
		return "", false
	}
	return prefix, true
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, s)
	}
	return b, nil
}
