package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pawdesk/pawdesk-platform/internal/tenancy"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

// StaffClaims are the JWT claims issued to front-desk users. PracticeID
// scopes every request the token makes.
type StaffClaims struct {
	PracticeID string `json:"practice_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth verifies the Bearer token on staff routes and stores the
// practice id in the request context. An empty secret disables the check,
// which only local development should use.
func StaffAuth(secret string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims := &StaffClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("staff auth rejected", "error", err, "path", r.URL.Path)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := tenancy.WithPracticeID(r.Context(), claims.PracticeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
