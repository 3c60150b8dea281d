// Package app assembles the marketplace services on top of one database.
package app

import (
	"context"
	"fmt"

	"github.com/merakilabs/marketplace-backend/api/routes"
	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/internal/cart"
	"github.com/merakilabs/marketplace-backend/internal/catalog"
	"github.com/merakilabs/marketplace-backend/internal/checkout"
	"github.com/merakilabs/marketplace-backend/internal/exchange"
	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/internal/payments"
	"github.com/merakilabs/marketplace-backend/internal/reconciliation"
	"github.com/merakilabs/marketplace-backend/internal/reporting"
	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/hostedpay"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
	"github.com/merakilabs/marketplace-backend/pkg/metrics"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	pkgredis "github.com/merakilabs/marketplace-backend/pkg/redis"
	"github.com/merakilabs/marketplace-backend/pkg/square"
)

const notificationScope = "payment-notification"

// Params are the shared clients the services are built on. Redis and
// Metrics are optional; Gateway defaults to the configured provider.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *pkgredis.Client
	Store   pkgredis.IdempotencyStore
	Metrics *metrics.Metrics
	Gateway payments.Gateway
}

// Build wires every service and returns them as router dependencies.
func Build(p Params) (routes.Dependencies, error) {
	var deps routes.Dependencies
	if p.Config == nil {
		return deps, fmt.Errorf("config required")
	}
	if p.DB == nil {
		return deps, fmt.Errorf("database client required")
	}
	if p.Metrics == nil {
		p.Metrics = metrics.New()
	}
	conn := p.DB.DB()
	locks := keylock.New()
	events := outbox.NewService(outbox.NewRepository(conn), p.Logger)

	resolver, err := accounts.NewService(accounts.NewRepository(conn))
	if err != nil {
		return deps, fmt.Errorf("accounts: %w", err)
	}
	products := catalog.NewRepository(conn)
	cartRepo := cart.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	negotiations := exchange.NewRepository(conn)
	sessions := payments.NewSessionRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return deps, fmt.Errorf("ledger: %w", err)
	}
	cartSvc, err := cart.NewService(cartRepo, products, resolver, locks)
	if err != nil {
		return deps, fmt.Errorf("cart: %w", err)
	}
	checkoutSvc, err := checkout.NewService(p.DB, cartRepo, orderRepo, products, resolver, ledgerSvc, events, locks, p.Metrics, p.Logger)
	if err != nil {
		return deps, fmt.Errorf("checkout: %w", err)
	}
	ordersSvc, err := orders.NewService(orderRepo, p.DB, events, locks, negotiations, resolver, p.Metrics)
	if err != nil {
		return deps, fmt.Errorf("orders: %w", err)
	}
	exchangeSvc, err := exchange.NewService(negotiations, orderRepo, p.DB, events, products, resolver, ledgerSvc, locks)
	if err != nil {
		return deps, fmt.Errorf("exchange: %w", err)
	}

	gateway := p.Gateway
	if gateway == nil {
		gateway, err = NewGateway(context.Background(), p.Config, p.Logger)
		if err != nil {
			return deps, err
		}
	}
	paymentsSvc, err := payments.NewService(orderRepo, resolver, sessions, gateway, p.Config.Payments, p.Logger)
	if err != nil {
		return deps, fmt.Errorf("payments: %w", err)
	}

	var guard *reconciliation.IdempotencyGuard
	if p.Store != nil {
		guard, err = reconciliation.NewIdempotencyGuard(p.Store, p.Config.Payments.IdempotencyTTL, notificationScope)
		if err != nil {
			return deps, fmt.Errorf("idempotency guard: %w", err)
		}
	}
	reconciler, err := reconciliation.NewService(reconciliation.ServiceParams{
		Sessions: sessions,
		Orders:   orderRepo,
		Ledger:   ledgerSvc,
		Tx:       p.DB,
		Outbox:   events,
		Locks:    locks,
		Guard:    guard,
		Metrics:  p.Metrics,
		Logger:   p.Logger,
	})
	if err != nil {
		return deps, fmt.Errorf("reconciliation: %w", err)
	}

	reportingSvc, err := reporting.NewService(reporting.NewRepository(), p.DB)
	if err != nil {
		return deps, fmt.Errorf("reporting: %w", err)
	}

	deps = routes.Dependencies{
		DB:             p.DB,
		Metrics:        p.Metrics,
		Cart:           cartSvc,
		Checkout:       checkoutSvc,
		Orders:         ordersSvc,
		Exchanges:      exchangeSvc,
		Payments:       paymentsSvc,
		Sessions:       sessions,
		Reconciliation: reconciler,
		Ledger:         ledgerSvc,
		Reporting:      reportingSvc,
	}
	if p.Redis != nil {
		deps.Redis = p.Redis
	}
	if p.Store != nil {
		deps.Idempotency = p.Store
	}
	return deps, nil
}

// NewGateway builds the payment gateway named by MARKETPLACE_PAYMENTS_PROVIDER.
func NewGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Gateway, error) {
	switch provider := cfg.Payments.NormalizedProvider(); provider {
	case config.PaymentProviderSquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		return payments.NewSquareGateway(client), nil
	case config.PaymentProviderHostedPay:
		client, err := hostedpay.NewClient(cfg.HostedPay, logg)
		if err != nil {
			return nil, fmt.Errorf("hostedpay client: %w", err)
		}
		return payments.NewHostedGateway(client), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", provider)
	}
}
