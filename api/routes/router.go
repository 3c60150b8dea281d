package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/merakilabs/marketplace-backend/api/controllers"
	admincontrollers "github.com/merakilabs/marketplace-backend/api/controllers/admin"
	cartcontrollers "github.com/merakilabs/marketplace-backend/api/controllers/cart"
	checkoutcontrollers "github.com/merakilabs/marketplace-backend/api/controllers/checkout"
	exchangecontrollers "github.com/merakilabs/marketplace-backend/api/controllers/exchanges"
	ordercontrollers "github.com/merakilabs/marketplace-backend/api/controllers/orders"
	paymentcontrollers "github.com/merakilabs/marketplace-backend/api/controllers/payments"
	reportcontrollers "github.com/merakilabs/marketplace-backend/api/controllers/reports"
	webhookcontrollers "github.com/merakilabs/marketplace-backend/api/controllers/webhooks"
	"github.com/merakilabs/marketplace-backend/api/middleware"
	"github.com/merakilabs/marketplace-backend/internal/cart"
	checkoutsvc "github.com/merakilabs/marketplace-backend/internal/checkout"
	"github.com/merakilabs/marketplace-backend/internal/exchange"
	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/internal/payments"
	"github.com/merakilabs/marketplace-backend/internal/reconciliation"
	"github.com/merakilabs/marketplace-backend/internal/reporting"
	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
	"github.com/merakilabs/marketplace-backend/pkg/metrics"
	pkgredis "github.com/merakilabs/marketplace-backend/pkg/redis"
)

// Dependencies are the services mounted by NewRouter. Nil services answer
// with an internal error instead of panicking.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Metrics     *metrics.Metrics

	Cart           cart.Service
	Checkout       checkoutsvc.Service
	Orders         orders.Service
	Exchanges      exchange.Service
	Payments       payments.Service
	Sessions       payments.SessionRepository
	Reconciliation reconciliation.Service
	Ledger         ledger.Service
	Reporting      reporting.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, deps.Metrics.Handler())
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.Payments(deps.Reconciliation, cfg.Payments.WebhookSecret, logg))
	})

	idempotent := middleware.Idempotency(deps.Idempotency, middleware.DefaultIdempotencyTTL, logg)
	critical := middleware.Idempotency(deps.Idempotency, middleware.CriticalIdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.List(deps.Cart, logg))
			r.Post("/items", cartcontrollers.Add(deps.Cart, logg))
			r.Patch("/items/{lineId}", cartcontrollers.Update(deps.Cart, logg))
			r.Delete("/items/{lineId}", cartcontrollers.Remove(deps.Cart, logg))
		})

		r.With(critical).Post("/checkout", checkoutcontrollers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/deliver", ordercontrollers.Deliver(deps.Orders, logg))
			r.Post("/{orderId}/complete", ordercontrollers.Complete(deps.Orders, logg))
			r.With(idempotent).Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
		})

		r.Route("/exchanges", func(r chi.Router) {
			r.With(idempotent).Post("/", exchangecontrollers.Request(deps.Exchanges, logg))
			r.With(idempotent).Post("/{orderId}/accept", exchangecontrollers.Accept(deps.Exchanges, logg))
			r.With(idempotent).Post("/{orderId}/refuse", exchangecontrollers.Refuse(deps.Exchanges, logg))
			r.With(idempotent).Post("/{orderId}/finalize", exchangecontrollers.Finalize(deps.Exchanges, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.With(critical).Post("/orders/{orderId}/link", paymentcontrollers.CreateLink(deps.Payments, logg))
			r.Get("/orders/{orderId}/total", paymentcontrollers.Total(deps.Payments, logg))
			r.Get("/success/{transactionId}", paymentcontrollers.Success(deps.Reconciliation, deps.Sessions, logg))
			r.Get("/failed/{transactionId}", paymentcontrollers.Failed(deps.Reconciliation, deps.Sessions, logg))
		})

		r.Route("/reports/me", func(r chi.Router) {
			r.Get("/counts", reportcontrollers.MyCounts(deps.Reporting, logg))
			r.Get("/earnings", reportcontrollers.MyEarnings(deps.Reporting, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.AccountRoleAdmin))
			r.Get("/orders", admincontrollers.Orders(deps.Orders, logg))
			r.Get("/orders/{orderId}/transactions", admincontrollers.OrderTransactions(deps.Ledger, logg))
			r.Get("/transactions", admincontrollers.Transactions(deps.Ledger, logg))
			r.Get("/transactions/{id}", admincontrollers.Transaction(deps.Ledger, logg))
			r.Get("/reports/counts", admincontrollers.Counts(deps.Reporting, logg))
		})
	})

	return r
}
