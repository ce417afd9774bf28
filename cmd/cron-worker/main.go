package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/internal/cron"
	"github.com/angelmondragon/paylink-backend/internal/gateway"
	"github.com/angelmondragon/paylink-backend/internal/gateway/sandbox"
	"github.com/angelmondragon/paylink-backend/internal/refunds"
	"github.com/angelmondragon/paylink-backend/internal/requests"
	"github.com/angelmondragon/paylink-backend/internal/transactions"
	"github.com/angelmondragon/paylink-backend/pkg/config"
	"github.com/angelmondragon/paylink-backend/pkg/db"
	"github.com/angelmondragon/paylink-backend/pkg/enums"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
	"github.com/angelmondragon/paylink-backend/pkg/metrics"
	"github.com/angelmondragon/paylink-backend/pkg/migrate"
	"github.com/angelmondragon/paylink-backend/pkg/outbox"
	"github.com/angelmondragon/paylink-backend/pkg/redis"
)

const lockKeyFormat = "pl:cron-worker:lock:%s"

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

	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	requestService, err := requests.NewService(requests.NewRepository(dbClient.DB()), dbClient, emitter, auditService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment request service", err)
		os.Exit(1)
	}

	// Sweep jobs only flip stale records to failed; they never call out to a
	// gateway, so the sandbox integrator satisfies the dependency.
	gateways := gateway.NewRegistry()
	sandboxIntegrator := sandbox.New()
	if err := gateways.Register(sandboxIntegrator); err != nil {
		logg.Error(context.Background(), "failed to register sandbox gateway", err)
		os.Exit(1)
	}
	for _, method := range enums.AllPaymentMethods() {
		if err := gateways.Bind(method, sandboxIntegrator.Name()); err != nil {
			logg.Error(context.Background(), "failed to bind sandbox gateway", err)
			os.Exit(1)
		}
	}

	transactionRepo := transactions.NewRepository(dbClient.DB())
	transactionService, err := transactions.NewService(
		transactionRepo,
		dbClient,
		emitter,
		auditService,
		requestService,
		gateways,
		redisClient,
		cfg.Sweep.GatewayWait,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create transaction service", err)
		os.Exit(1)
	}

	refundService, err := refunds.NewService(
		refunds.NewRepository(dbClient.DB()),
		transactionRepo,
		dbClient,
		emitter,
		auditService,
		requestService,
		gateways,
		cfg.Sweep.GatewayWait,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create refund service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewExpirySweepJob(cron.ExpirySweepJobParams{
		Logger:    logg,
		Requests:  requestService,
		BatchSize: cfg.Sweep.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry sweep job", err)
		os.Exit(1)
	}

	staleJob, err := cron.NewStalePendingJob(cron.StalePendingJobParams{
		Logger:       logg,
		Transactions: transactionService,
		Refunds:      refundService,
		StaleAfter:   cfg.Sweep.StaleAfter,
		BatchSize:    cfg.Sweep.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale pending job", err)
		os.Exit(1)
	}

	auditJob, err := cron.NewAuditRetentionJob(cron.AuditRetentionJobParams{
		Logger:    logg,
		Audit:     auditService,
		Retention: cfg.Audit.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit retention job", err)
		os.Exit(1)
	}

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, staleJob, auditJob, outboxJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Sweep.Interval,
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
