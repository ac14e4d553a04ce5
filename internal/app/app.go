// Package app assembles services, middleware, and handlers into the HTTP
// application.
package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/ngolink/internal/billing"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/handler"
	"github.com/DukeRupert/ngolink/internal/metrics"
	"github.com/DukeRupert/ngolink/internal/middleware"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/DukeRupert/ngolink/internal/service"
	"github.com/DukeRupert/ngolink/internal/settings"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options carries the configuration the application needs.
type Options struct {
	IsSecure               bool
	SessionDuration        time.Duration
	AdminEmails            []string
	AuthRateLimitPerMinute int
	MetricsUsername        string
	MetricsPassword        string
}

// App is the assembled HTTP application.
type App struct {
	Handler http.Handler

	authLimiter *middleware.RateLimiter
}

// New wires every service and route over store. gateway may be nil, in
// which case billing endpoints report BILLING_DISABLED.
func New(
	opts Options,
	store repository.Repository,
	settingsCache *settings.Cache,
	gateway billing.Gateway,
	catalog billing.Catalog,
	logger *slog.Logger,
) *App {
	// Services
	userService := service.NewUserService(store, logger, service.UserServiceConfig{
		SessionDuration: opts.SessionDuration,
		AdminEmails:     opts.AdminEmails,
	})
	planService := service.NewPlanService(store, logger)
	quotaService := service.NewQuotaService(store, settingsCache, logger)
	jobService := service.NewJobService(store, quotaService, logger)
	applicationService := service.NewApplicationService(store, quotaService, logger)
	billingService := service.NewBillingService(store, gateway, catalog, logger)

	// Middleware
	authMw := middleware.NewAuthMiddleware(userService, logger, opts.IsSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(opts.IsSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(opts.MetricsUsername, opts.MetricsPassword, logger)

	perMinute := opts.AuthRateLimitPerMinute
	if perMinute < 1 {
		perMinute = 10
	}
	authLimiter := middleware.NewRateLimiter(perMinute, perMinute, logger)
	limit := middleware.NewRateLimitMiddleware(authLimiter, logger).Limit

	// Handlers
	authHandler := handler.NewAuthHandler(userService, planService, quotaService, logger, opts.IsSecure)
	billingHandler := handler.NewBillingHandler(billingService, planService, logger)
	jobHandler := handler.NewJobHandler(jobService, applicationService, quotaService, logger)
	applicationHandler := handler.NewApplicationHandler(applicationService, logger)
	adminHandler := handler.NewAdminHandler(planService, store, settingsCache, logger)
	healthHandler := handler.NewHealthHandler(store, logger)

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	healthHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	requireUser := authMw.RequireUser
	requireNGO := authMw.RequireRole(domain.RoleNGO)

	authHandler.RegisterRoutes(mux, requireUser, limit)
	billingHandler.RegisterRoutes(mux, requireUser)
	jobHandler.RegisterRoutes(mux, requireUser, requireNGO)
	applicationHandler.RegisterRoutes(mux, requireUser)
	adminHandler.RegisterRoutes(mux, authMw.RequireAdmin)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	stack := middleware.Stack(
		loggingMw.Handler,
		loggingMw.Recover,
		securityMw.Handler,
		authMw.WithUser,
	)

	return &App{
		Handler:     stack(metrics.Instrument(mux)),
		authLimiter: authLimiter,
	}
}

// Close stops background work started by New.
func (a *App) Close() {
	a.authLimiter.Stop()
}
