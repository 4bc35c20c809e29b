package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/gym-lifecycle/internal/app/deps"
	"github.com/magabrotheeeer/gym-lifecycle/internal/config"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/admin/ban"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/admin/broadcast"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/admin/notes"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/admin/reconcile"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/auth/password"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/health"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/jobs"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/me/pause"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/handlers/payment/webhook"
	"github.com/magabrotheeeer/gym-lifecycle/internal/http/middlewarectx"
	"github.com/magabrotheeeer/gym-lifecycle/internal/lib/jwt"
	"github.com/magabrotheeeer/gym-lifecycle/internal/services/reconciler"
)

// jobPaths: маршруты задач относительно /api/v1/jobs.
var jobPaths = map[string]string{
	reconciler.JobPauses:         "/pauses",
	reconciler.JobRemindersPush:  "/reminders/push",
	reconciler.JobRemindersEmail: "/reminders/email",
	reconciler.JobSweep:          "/sweep",
}

// RegisterRoutes регистрирует все маршруты API.
func RegisterRoutes(r chi.Router, logger *slog.Logger, d *deps.Deps, cfg *config.Config, gatherer prometheus.Gatherer) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Задачи сверки для внешнего планировщика
		r.Route("/jobs", func(r chi.Router) {
			r.Use(middlewarectx.JobSecretMiddleware(cfg.Jobs.Secret, logger))
			for _, job := range d.Jobs(cfg.Jobs.Schedules) {
				r.Post(jobPaths[job.Name], jobs.New(logger, job.Name, job.Run).ServeHTTP)
			}
		})

		// Открытые конечные точки с ограничением частоты
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit, cfg.RateBurst))
			r.Post("/login", login.New(logger, d.Accounts).ServeHTTP)
			r.Post("/password/forgot", password.NewForgot(logger, d.Accounts).ServeHTTP)
			r.Post("/password/reset", password.NewReset(logger, d.Accounts).ServeHTTP)
		})

		// Webhook endpoint (подпись проверяет сервис)
		r.Post("/payments/webhook", webhook.New(logger, d.Payments).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.JWTMaker, logger))
			r.Post("/me/pause", pause.New(logger, d.Accounts).ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.RequireRole(jwt.RoleAdmin, logger))
				banHandler := ban.New(logger, d.Accounts)
				r.Post("/clients/{id}/ban", banHandler.Ban)
				r.Delete("/clients/{id}/ban", banHandler.Unban)
				r.Post("/clients/{id}/reconcile", reconcile.New(logger, d.Reconciler).ServeHTTP)
				r.Get("/clients/{id}/notes", notes.New(logger, d.Accounts).ServeHTTP)
				r.Post("/notifications/broadcast", broadcast.New(logger, d.Reconciler).ServeHTTP)
			})
		})
	})

	checks := make(map[string]health.Checker, len(d.Checks))
	for name, check := range d.Checks {
		checks[name] = health.Checker(check)
	}
	r.Get("/health", health.New(logger, checks).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

// NewRouter создаёт chi-роутер со всеми маршрутами.
func NewRouter(logger *slog.Logger, d *deps.Deps, cfg *config.Config, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	RegisterRoutes(router, logger, d, cfg, gatherer)
	return router
}
