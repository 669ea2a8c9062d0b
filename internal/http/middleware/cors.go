package middleware

import (
	"net/http"
	"strings"
)

// Methods and headers the staff surface actually uses; the voice webhook is
// server-to-server and never preflights.
const (
	corsHeaders = "Authorization, Content-Type, X-Practice-Id"
	corsMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsMaxAge  = "600"
)

// CORS applies an origin allowlist. A "*" entry admits every origin; the
// matched origin is always echoed back rather than wildcarded so that
// credentialed staff requests keep working.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			allowAny = true
		default:
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			permitted := false
			if origin != "" {
				if _, ok := allowed[strings.ToLower(origin)]; ok || allowAny {
					permitted = true
				}
			}

			if permitted {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}
