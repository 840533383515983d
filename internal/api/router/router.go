package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/zalo-lead-notifier/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/zalo-lead-notifier/internal/http/middleware"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	CRMHook        *handlers.CRMHookHandler
	ZaloAdmin      *handlers.ZaloAdminHandler
	HookJWTSecret  string
	AdminJWTSecret string
	HookRatePerSec float64
	HookRateBurst  int
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.Health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.CRMHook != nil {
		r.Route("/hooks/crm", func(hooks chi.Router) {
			if cfg.HookRatePerSec > 0 {
				hooks.Use(httpmiddleware.RateLimit(cfg.HookRatePerSec, cfg.HookRateBurst))
			}
			hooks.Use(httpmiddleware.HookJWT(cfg.HookJWTSecret))
			hooks.Post("/lead-after-save", cfg.CRMHook.LeadAfterSave)
		})
	}

	if cfg.ZaloAdmin != nil && cfg.AdminJWTSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			admin.Get("/zalo/token-status", cfg.ZaloAdmin.TokenStatus)
			admin.Post("/zalo/token/refresh", cfg.ZaloAdmin.RefreshToken)
			admin.Get("/leads/{leadID}/deliveries", cfg.ZaloAdmin.LeadDeliveries)
		})
	}

	return r
}
