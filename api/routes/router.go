package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hello-adam-martin/offmarket-sub000/api/controllers"
	admincontrollers "github.com/hello-adam-martin/offmarket-sub000/api/controllers/admin"
	escrowcontrollers "github.com/hello-adam-martin/offmarket-sub000/api/controllers/escrow"
	inquirycontrollers "github.com/hello-adam-martin/offmarket-sub000/api/controllers/inquiries"
	limitcontrollers "github.com/hello-adam-martin/offmarket-sub000/api/controllers/limits"
	subscriptioncontrollers "github.com/hello-adam-martin/offmarket-sub000/api/controllers/subscriptions"
	webhookcontrollers "github.com/hello-adam-martin/offmarket-sub000/api/controllers/webhooks"
	"github.com/hello-adam-martin/offmarket-sub000/api/middleware"
	billingsvc "github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	escrowsvc "github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	inquirysvc "github.com/hello-adam-martin/offmarket-sub000/internal/inquiries"
	subsvc "github.com/hello-adam-martin/offmarket-sub000/internal/subscriptions"
	stripewebhook "github.com/hello-adam-martin/offmarket-sub000/internal/webhooks/stripe"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/config"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/stripe"
)

type RouterParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	EscrowService        *escrowsvc.Service
	EscrowSweeper        *escrowsvc.Sweeper
	InquiryService       *inquirysvc.Service
	SubscriptionService  *subsvc.Service
	BillingService       *billingsvc.Service
	Gate                 *billingsvc.Gate
	SettingsCache        *billingsvc.SettingsCache
	DLQRepository        *outbox.DLQRepository
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookService, p.StripeClient, p.StripeWebhookGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/v1/escrow", func(r chi.Router) {
			r.Post("/quote", escrowcontrollers.Quote(p.EscrowService, logg))
			r.Post("/create", escrowcontrollers.Create(p.EscrowService, logg))
			r.Post("/confirm", escrowcontrollers.Confirm(p.EscrowService, logg))
			r.Get("/check", escrowcontrollers.Check(p.EscrowService, logg))
		})

		r.Route("/v1/inquiries", func(r chi.Router) {
			r.Get("/", inquirycontrollers.List(p.InquiryService, logg))
			r.Post("/", inquirycontrollers.Create(p.InquiryService, logg))
			r.Post("/{id}/accept", inquirycontrollers.Accept(p.InquiryService, logg))
			r.Post("/{id}/decline", inquirycontrollers.Decline(p.InquiryService, logg))
			r.Post("/{id}/complete", inquirycontrollers.Complete(p.InquiryService, logg))
		})

		r.Route("/v1/subscriptions", func(r chi.Router) {
			r.Post("/checkout", subscriptioncontrollers.Checkout(p.SubscriptionService, logg))
			r.Post("/portal", subscriptioncontrollers.Portal(p.SubscriptionService, logg))
			r.Get("/me", subscriptioncontrollers.Me(p.SubscriptionService, logg))
		})

		r.Get("/v1/limits/me", limitcontrollers.Me(p.Gate, p.SettingsCache, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))

		r.Route("/v1/billing", func(r chi.Router) {
			r.Post("/escrows/{id}/release", admincontrollers.EscrowRelease(p.EscrowService, logg))
			r.Post("/escrows/{id}/refund", admincontrollers.EscrowRefund(p.EscrowService, logg))
			r.Post("/process-expired-escrows", admincontrollers.ProcessExpiredEscrows(p.EscrowSweeper, logg))
			r.Get("/settings", admincontrollers.SettingsGet(p.BillingService, logg))
			r.Put("/settings", admincontrollers.SettingsPut(p.BillingService, logg))
			r.Get("/dead-letters", admincontrollers.DeadLetters(p.DLQRepository, cfg.Webhook.DLQListLimit, logg))
		})
	})

	return r
}
