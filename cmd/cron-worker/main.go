package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/internal/cron"
	"github.com/merakilabs/marketplace-backend/internal/exchange"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/config"
	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
	"github.com/merakilabs/marketplace-backend/pkg/metrics"
	"github.com/merakilabs/marketplace-backend/pkg/migrate"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/redis"
)

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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	m := metrics.New()
	registry, err := buildJobs(cfg, logg, dbClient, m)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, cron.LockKey(cfg.App.Env), 0)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, m *metrics.Metrics) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	resolver, err := accounts.NewService(accounts.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	ordersSvc, err := orders.NewService(
		orders.NewRepository(conn),
		dbClient,
		outbox.NewService(outboxRepo, logg),
		keylock.New(),
		exchange.NewRepository(conn),
		resolver,
		m,
	)
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:              logg,
		Reader:              cron.NewStaleOrders(conn),
		Orders:              ordersSvc,
		PendingPaymentTTL:   cfg.Cron.PendingPaymentTTL,
		AwaitingExchangeTTL: cfg.Cron.AwaitingExchangeTTL,
		BatchSize:           cfg.Cron.ExpiryBatchSize,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outboxRepo,
		Retention:        cfg.Cron.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(expiry, retention)
}
