package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pawdesk/pawdesk-platform/internal/tenancy"
)

const testSecret = "staff-test-secret"

func signStaffToken(t *testing.T, secret, practiceID string, method jwt.SigningMethod) string {
	t.Helper()
	claims := StaffClaims{
		PracticeID: practiceID,
		Role:       "front_desk",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authProbe(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := tenancy.PracticeIDFromContext(r.Context()); ok {
			*captured = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestStaffAuthValidToken(t *testing.T) {
	var captured string
	handler := StaffAuth(testSecret, nil)(authProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/practices/p1/slots", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, testSecret, "p1", jwt.SigningMethodHS256))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if captured != "p1" {
		t.Fatalf("practice id in context = %q, want p1", captured)
	}
}

func TestStaffAuthRejections(t *testing.T) {
	handler := StaffAuth(testSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name  string
		token string
	}{
		{"missing header", ""},
		{"wrong secret", signStaffToken(t, "other-secret", "p1", jwt.SigningMethodHS256)},
		{"garbage", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tt.name, rec.Code)
		}
	}
}

func TestStaffAuthExpiredToken(t *testing.T) {
	claims := StaffClaims{
		PracticeID: "p1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	handler := StaffAuth(testSecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d, want 401", rec.Code)
	}
}

// An empty secret passes requests through untouched; local development only.
func TestStaffAuthDisabled(t *testing.T) {
	handler := StaffAuth("", nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func scopedRouter(secret string) chi.Router {
	r := chi.NewRouter()
	r.Use(StaffAuth(secret, nil))
	r.With(PracticeScope).Get("/practices/{practiceID}/slots", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestPracticeScopeMatch(t *testing.T) {
	router := scopedRouter(testSecret)

	req := httptest.NewRequest(http.MethodGet, "/practices/p1/slots", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, testSecret, "p1", jwt.SigningMethodHS256))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

// A token for one practice cannot read another practice's schedule.
func TestPracticeScopeMismatch(t *testing.T) {
	router := scopedRouter(testSecret)

	req := httptest.NewRequest(http.MethodGet, "/practices/p2/slots", nil)
	req.Header.Set("Authorization", "Bearer "+signStaffToken(t, testSecret, "p1", jwt.SigningMethodHS256))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

// With auth disabled there is no token practice to compare against.
func TestPracticeScopeWithoutAuth(t *testing.T) {
	router := scopedRouter("")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/practices/p1/slots", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
