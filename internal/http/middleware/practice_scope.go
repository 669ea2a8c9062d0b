package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pawdesk/pawdesk-platform/internal/tenancy"
)

// PracticeScope rejects staff requests whose URL practice does not match
// the practice the token was issued for. Routes without a practiceID param
// pass through.
func PracticeScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		urlPractice := chi.URLParam(r, "practiceID")
		tokenPractice, ok := tenancy.PracticeIDFromContext(r.Context())
		if urlPractice != "" && ok && urlPractice != tokenPractice {
			http.Error(w, "practice mismatch", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
