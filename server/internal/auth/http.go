package auth

import (
	"encoding/json"
	"net/http"
)

// RequireKey wraps next so that requests with a method other than GET, HEAD
// or OPTIONS must carry key in header. Reads stay open so dashboards and the
// WebSocket stream work without credentials.
//
// The same pass-through rules as APIKeyInterceptor apply: mode != "apikey"
// or an empty key disables the check.
func RequireKey(mode, header, key string, next http.Handler) http.Handler {
	if mode != "apikey" || key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if !equal(r.Header.Get(header), key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
