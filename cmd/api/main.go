package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/paylink-backend/api/routes"
	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/internal/gateway"
	"github.com/angelmondragon/paylink-backend/internal/gateway/sandbox"
	"github.com/angelmondragon/paylink-backend/internal/gateway/squaregw"
	"github.com/angelmondragon/paylink-backend/internal/reconcile"
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
	"github.com/angelmondragon/paylink-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/paylink-backend/pkg/redis"
	"github.com/angelmondragon/paylink-backend/pkg/square"
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

	gateways, err := buildGatewayRegistry(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway registry", err)
		os.Exit(1)
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

	guard, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewReconciler(
		dbClient,
		emitter,
		guard,
		transactionService,
		refundService,
		requestService,
		metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
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
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			requestService,
			transactionService,
			refundService,
			auditService,
			reconciler,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildGatewayRegistry wires the sandbox integrator for every method and, when
// Square credentials are configured, routes card payments through Square.
func buildGatewayRegistry(cfg *config.Config, logg *logger.Logger) (*gateway.Registry, error) {
	registry := gateway.NewRegistry()

	sandboxIntegrator := sandbox.New()
	if err := registry.Register(sandboxIntegrator); err != nil {
		return nil, err
	}
	for _, method := range enums.AllPaymentMethods() {
		if err := registry.Bind(method, sandboxIntegrator.Name()); err != nil {
			return nil, err
		}
	}

	if cfg.Square.AccessToken != "" {
		squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		squareIntegrator, err := squaregw.New(squareClient)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(squareIntegrator); err != nil {
			return nil, err
		}
		if err := registry.Bind(enums.PaymentMethodCard, squareIntegrator.Name()); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
