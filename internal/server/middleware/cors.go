package middleware

import (
	"net/http"
	"strings"
)

// CORS lets the browser dashboard at origins call the API. Matching origins
// are echoed back; a "*" entry admits any origin. An empty list admits none,
// so the API stays same-origin unless configured. Preflights from other
// origins are refused with 403 instead of falling through to the router.
func CORS(origins []string) func(http.Handler) http.Handler {
	anyOrigin := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			anyOrigin = true
			continue
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			ok := origin != "" && (anyOrigin || allowed[strings.ToLower(origin)])
			if ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				// Retry-After accompanies 429s from the rate limiter.
				w.Header().Set("Access-Control-Expose-Headers", "Retry-After")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
