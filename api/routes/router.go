package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/paylink-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/paylink-backend/api/controllers/webhooks"
	"github.com/angelmondragon/paylink-backend/api/middleware"
	"github.com/angelmondragon/paylink-backend/internal/audit"
	"github.com/angelmondragon/paylink-backend/internal/reconcile"
	"github.com/angelmondragon/paylink-backend/internal/refunds"
	"github.com/angelmondragon/paylink-backend/internal/requests"
	"github.com/angelmondragon/paylink-backend/internal/transactions"
	"github.com/angelmondragon/paylink-backend/pkg/config"
	"github.com/angelmondragon/paylink-backend/pkg/db"
	"github.com/angelmondragon/paylink-backend/pkg/logger"
	"github.com/angelmondragon/paylink-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	requestService requests.Service,
	transactionService transactions.Service,
	refundService refunds.Service,
	auditService audit.Service,
	reconciler *reconcile.Reconciler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	// Payer-facing pay link, no tenant header required.
	r.Get("/api/public/pay/{paymentToken}", controllers.PayLink(requestService, logg))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(reconciler, cfg.Square, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.TenantContext(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/payment-requests", func(r chi.Router) {
			r.Post("/", controllers.RequestCreate(requestService, logg))
			r.Get("/", controllers.RequestList(requestService, logg))
			r.Get("/code/{requestCode}", controllers.RequestByCode(requestService, logg))
			r.Route("/{requestId}", func(r chi.Router) {
				r.Get("/", controllers.RequestDetail(requestService, logg))
				r.Patch("/", controllers.RequestUpdate(requestService, logg))
				r.Post("/cancel", controllers.RequestCancel(requestService, logg))
				r.Get("/audit", controllers.RequestAuditTrail(auditService, logg))
				r.Post("/transactions", controllers.TransactionAttempt(transactionService, logg))
				r.Get("/transactions", controllers.TransactionsForRequest(transactionService, logg))
			})
		})

		r.Route("/transactions/{transactionId}", func(r chi.Router) {
			r.Get("/", controllers.TransactionDetail(transactionService, logg))
			r.Post("/process", controllers.TransactionProcess(transactionService, logg))
			r.Post("/retry", controllers.TransactionRetry(transactionService, logg))
			r.Post("/cancel", controllers.TransactionCancel(transactionService, logg))
			r.Get("/audit", controllers.TransactionAuditTrail(auditService, logg))
			r.Post("/refunds", controllers.RefundCreate(refundService, logg))
			r.Get("/refunds", controllers.RefundsForTransaction(refundService, logg))
			r.Get("/refundable", controllers.RefundableBalance(refundService, logg))
		})

		r.Route("/refunds/{refundId}", func(r chi.Router) {
			r.Get("/", controllers.RefundDetail(refundService, logg))
			r.Post("/process", controllers.RefundProcess(refundService, logg))
			r.Post("/retry", controllers.RefundRetry(refundService, logg))
			r.Post("/cancel", controllers.RefundCancel(refundService, logg))
			r.Get("/audit", controllers.RefundAuditTrail(auditService, logg))
		})
	})

	return r
}
