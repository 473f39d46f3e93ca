package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dpfarias/leadline-backend/internal/cron"
	"github.com/dpfarias/leadline-backend/internal/leads"
	"github.com/dpfarias/leadline-backend/internal/messaging"
	"github.com/dpfarias/leadline-backend/internal/payments"
	"github.com/dpfarias/leadline-backend/pkg/config"
	"github.com/dpfarias/leadline-backend/pkg/db"
	"github.com/dpfarias/leadline-backend/pkg/logger"
	"github.com/dpfarias/leadline-backend/pkg/metrics"
	"github.com/dpfarias/leadline-backend/pkg/migrate"
	"github.com/dpfarias/leadline-backend/pkg/openpix"
	"github.com/dpfarias/leadline-backend/pkg/redis"
	"github.com/dpfarias/leadline-backend/pkg/whatsapp"
)

const lockKeyFormat = "ll:cron-worker:lock:%s"

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

	whatsappClient, err := whatsapp.NewClient(cfg.WhatsApp)
	if err != nil {
		logg.Error(context.Background(), "failed to create whatsapp client", err)
		os.Exit(1)
	}
	openpixClient, err := openpix.NewClient(cfg.OpenPix)
	if err != nil {
		logg.Error(context.Background(), "failed to create openpix client", err)
		os.Exit(1)
	}

	templates, err := messaging.NewTemplates(cfg.Messaging.Timezone)
	if err != nil {
		logg.Error(context.Background(), "failed to load message templates", err)
		os.Exit(1)
	}

	messagingRepo := messaging.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	leadsRepo := leads.NewRepository(dbClient.DB())

	queue, err := messaging.NewService(messaging.ServiceParams{
		Repo:      messagingRepo,
		Payments:  paymentsRepo,
		Logger:    logg,
		Messaging: cfg.Messaging,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create messaging service", err)
		os.Exit(1)
	}

	leadsService, err := leads.NewService(leads.ServiceParams{
		Repo:   leadsRepo,
		Queue:  queue,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create leads service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:      paymentsRepo,
		Provider:  openpixClient,
		Queue:     queue,
		Leads:     leadsService,
		Logger:    logg,
		Messaging: cfg.Messaging,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	queueMetrics := metrics.NewQueueMetrics(prometheus.DefaultRegisterer)
	processor, err := messaging.NewProcessor(messaging.ProcessorParams{
		Repo:         messagingRepo,
		Transactions: paymentsRepo,
		Meetings:     paymentsRepo,
		Sender:       whatsappClient,
		Templates:    templates,
		Logger:       logg,
		Metrics:      queueMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create queue processor", err)
		os.Exit(1)
	}

	dispatchJob, err := cron.NewMessageDispatchJob(cron.MessageDispatchJobParams{
		Logger:     logg,
		Dispatcher: processor,
		Batch:      cfg.Messaging.DispatchBatch,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(dispatchJob)
	if !cfg.Cron.DispatchOnly {
		expiryJob, err := cron.NewPixExpiryJob(cron.PixExpiryJobParams{
			Logger:  logg,
			Sweeper: paymentsService,
			Batch:   cfg.Messaging.ExpiryBatch,
			Every:   cfg.Cron.SweepEvery,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create pix expiry job", err)
			os.Exit(1)
		}
		registry.Register(expiryJob)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
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

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
