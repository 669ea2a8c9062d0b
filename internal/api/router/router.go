// Package router assembles the HTTP surface: the public voice webhook, the
// authenticated staff API, and the operational endpoints.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pawdesk/pawdesk-platform/internal/gateway/staff"
	"github.com/pawdesk/pawdesk-platform/internal/gateway/voice"
	httpmiddleware "github.com/pawdesk/pawdesk-platform/internal/http/middleware"
	"github.com/pawdesk/pawdesk-platform/internal/practice"
	"github.com/pawdesk/pawdesk-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	VoiceHandler       *voice.Handler
	StaffHandler       *staff.Handler
	StatsHandler       *practice.StatsHandler
	MetricsHandler     http.Handler
	StaffJWTSecret     string
	CORSAllowedOrigins []string
	HealthCheck        func() error

	// Voice webhook throttle; zero values fall back to the middleware
	// defaults.
	VoiceRateLimitPerMinute int
	VoiceRateLimitBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: health, metrics, and the voice platform webhook.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.VoiceHandler != nil {
			public.With(httpmiddleware.RateLimit(cfg.VoiceRateLimitPerMinute, cfg.VoiceRateLimitBurst)).
				Post("/webhooks/voice/functions", cfg.VoiceHandler.HandleFunctionCall)
		}
	})

	// Staff API, JWT-protected and practice-scoped.
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.StaffAuth(cfg.StaffJWTSecret, cfg.Logger))
		api.Use(httpmiddleware.PracticeScope)

		if cfg.StaffHandler != nil {
			api.Route("/practices/{practiceID}", func(p chi.Router) {
				p.Get("/slots", cfg.StaffHandler.GetSlots)
				p.Get("/appointments", cfg.StaffHandler.ListAppointments)
				p.Post("/appointments", cfg.StaffHandler.CreateAppointment)
				if cfg.StatsHandler != nil {
					p.Get("/stats", cfg.StatsHandler.GetStats)
				}
			})
			api.Route("/appointments/{appointmentID}", func(a chi.Router) {
				a.Get("/", cfg.StaffHandler.GetAppointment)
				a.Patch("/", cfg.StaffHandler.UpdateAppointment)
				a.Delete("/", cfg.StaffHandler.CancelAppointment)
			})
		}
	})

	return r
}

// healthHandler reports liveness, and readiness when a check is wired.
func healthHandler(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if check != nil {
			if err := check(); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
