package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	"github.com/hello-adam-martin/offmarket-sub000/internal/cron"
	"github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	"github.com/hello-adam-martin/offmarket-sub000/internal/inquiries"
	"github.com/hello-adam-martin/offmarket-sub000/internal/notifications"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/config"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/metrics"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/migrate"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/redis"
	pkgstripe "github.com/hello-adam-martin/offmarket-sub000/pkg/stripe"
)

const lockKeyFormat = "om:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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
	outboxRepo := outbox.NewRepository(gdb)
	outboxService := outbox.NewService(outboxRepo, logg)
	dlqRepo := outbox.NewDLQRepository(gdb)

	settingsCache := billing.NewSettingsCache(billing.NewRepository(gdb))
	escrowRepo := escrow.NewRepository(gdb)
	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Repo:              escrowRepo,
		Calculator:        billing.NewCalculator(settingsCache),
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

	sweeper, err := escrow.NewSweeper(escrow.SweeperParams{
		Repo:      escrowRepo,
		Service:   escrowService,
		Inquiries: inquiries.NewRepository(gdb),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow sweeper", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	expiryJob, err := cron.NewEscrowExpiryJob(cron.EscrowExpiryJobParams{
		Logger:  logg,
		Sweeper: sweeper,
		Metrics: metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow expiry job", err)
		os.Exit(1)
	}

	notifier, err := notifications.NewLogNotifier(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	dispatchJob, err := cron.NewOutboxDispatchJob(cron.OutboxDispatchJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		DLQ:         dlqRepo,
		Notifier:    notifier,
		BatchSize:   cfg.Outbox.DispatchBatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox dispatch job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Outbox.RetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, dispatchJob, retentionJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	go serveMetrics(ctx, logg, cfg.Cron.Port)

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
