package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dpfarias/leadline-backend/api/controllers"
	"github.com/dpfarias/leadline-backend/api/middleware"
	"github.com/dpfarias/leadline-backend/internal/leads"
	"github.com/dpfarias/leadline-backend/internal/messaging"
	"github.com/dpfarias/leadline-backend/internal/payments"
	"github.com/dpfarias/leadline-backend/pkg/config"
	"github.com/dpfarias/leadline-backend/pkg/db"
	"github.com/dpfarias/leadline-backend/pkg/logger"
	"github.com/dpfarias/leadline-backend/pkg/redis"
)

// NewRouter assembles the HTTP surface: public signup and checkout, provider
// webhooks, and the secret-guarded cron triggers.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	leadsService leads.Service,
	paymentsService payments.Service,
	processor *messaging.Processor,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	registerPolicy := middleware.NewRegisterRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		cfg.RateLimit.RegisterPhoneLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/v1/leads", func(r chi.Router) {
		r.With(middleware.RegisterRateLimit(registerPolicy, redisClient, logg)).
			Post("/", controllers.RegisterLead(leadsService, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Post("/charges", controllers.CreateCharge(leadsService, paymentsService, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/openpix", controllers.OpenPixWebhook(paymentsService, cfg.OpenPix.WebhookSecret, logg))
	})

	r.Route("/api/v1/cron", func(r chi.Router) {
		r.Use(middleware.CronAuth(logg, cfg.Cron.Secret))
		r.Post("/process-messages", controllers.ProcessMessages(processor, cfg.Messaging.DispatchBatch, logg))
		r.Post("/sweep-pix", controllers.SweepPix(paymentsService, cfg.Messaging.ExpiryBatch, logg))
	})

	return r
}
