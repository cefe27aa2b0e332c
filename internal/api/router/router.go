package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-concierge/internal/calendar"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-concierge/internal/http/middleware"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger  *logging.Logger
	Webhook *conversation.WebhookHandler
	Admin   *conversation.AdminHandler
	// Dashboard is mounted next to the admin routes. Optional.
	Dashboard *clinic.DashboardHandler
	// GoogleConsent serves the one-time OAuth consent flow. Optional.
	GoogleConsent   *calendar.Handler
	AdminAuthSecret string
	// AdminLimiter throttles admin and consent routes per client IP. Optional.
	AdminLimiter   *httpmiddleware.RateLimiter
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// ManyChat retries webhooks that take longer than a few seconds.
	if cfg.Webhook != nil {
		r.Group(func(hooks chi.Router) {
			hooks.Use(middleware.Timeout(10 * time.Second))
			cfg.Webhook.Routes(hooks)
		})
	}

	r.Group(func(protected chi.Router) {
		if cfg.AdminLimiter != nil {
			protected.Use(httpmiddleware.RateLimit(cfg.AdminLimiter, httpmiddleware.ClientIP))
		}
		if cfg.GoogleConsent != nil {
			cfg.GoogleConsent.Routes(protected)
		}
		if cfg.Admin != nil || cfg.Dashboard != nil {
			protected.Group(func(admin chi.Router) {
				admin.Use(middleware.Compress(5))
				admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
				if cfg.Admin != nil {
					cfg.Admin.Routes(admin)
				}
				if cfg.Dashboard != nil {
					admin.Get("/admin/dashboard", cfg.Dashboard.GetDashboard)
				}
			})
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
