package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/hello-adam-martin/offmarket-sub000/api/routes"
	"github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	"github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	"github.com/hello-adam-martin/offmarket-sub000/internal/inquiries"
	"github.com/hello-adam-martin/offmarket-sub000/internal/subscriptions"
	stripewebhook "github.com/hello-adam-martin/offmarket-sub000/internal/webhooks/stripe"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/config"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/migrate"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/redis"
	pkgstripe "github.com/hello-adam-martin/offmarket-sub000/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)
	dlqRepo := outbox.NewDLQRepository(gdb)

	billingRepo := billing.NewRepository(gdb)
	settingsCache := billing.NewSettingsCache(billingRepo)
	calculator := billing.NewCalculator(settingsCache)
	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:   billingRepo,
		Cache:  settingsCache,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	subscriptionRepo := subscriptions.NewRepository(gdb)
	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subscriptionRepo,
		Stripe:            subscriptions.NewStripeClient(stripeClient),
		StripeCfg:         cfg.Stripe,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	gate, err := billing.NewGate(billing.GateParams{
		Subscriptions: subscriptionRepo,
		Cache:         settingsCache,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create feature gate", err)
		os.Exit(1)
	}

	escrowRepo := escrow.NewRepository(gdb)
	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Repo:              escrowRepo,
		Calculator:        calculator,
		Settings:          settingsCache,
		Stripe:            escrow.NewStripeClient(stripeClient),
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	inquiryRepo := inquiries.NewRepository(gdb)
	inquiryService, err := inquiries.NewService(inquiries.ServiceParams{
		Repo:              inquiryRepo,
		Escrow:            escrowService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inquiry service", err)
		os.Exit(1)
	}

	sweeper, err := escrow.NewSweeper(escrow.SweeperParams{
		Repo:      escrowRepo,
		Service:   escrowService,
		Inquiries: inquiryRepo,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow sweeper", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Subscriptions: subscriptionService,
		DLQ:           dlqRepo,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Outbox.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			EscrowService:        escrowService,
			EscrowSweeper:        sweeper,
			InquiryService:       inquiryService,
			SubscriptionService:  subscriptionService,
			BillingService:       billingService,
			Gate:                 gate,
			SettingsCache:        settingsCache,
			DLQRepository:        dlqRepo,
			StripeClient:         stripeClient,
			StripeWebhookService: webhookService,
			StripeWebhookGuard:   webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
