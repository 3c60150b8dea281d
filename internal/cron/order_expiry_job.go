package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

const (
	defaultPendingPaymentTTL   = 72 * time.Hour
	defaultAwaitingExchangeTTL = 7 * 24 * time.Hour
	defaultExpiryBatchSize     = 100

	ReasonPaymentExpired  = "payment window expired"
	ReasonExchangeExpired = "exchange request expired"
)

type staleOrderReader interface {
	FindStale(ctx context.Context, status enums.OrderStatus, before time.Time, limit int) ([]uuid.UUID, error)
}

type orderCanceller interface {
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor orders.Actor) (*models.Order, error)
}

// StaleOrders reads orders that have sat in one status past a cutoff.
type StaleOrders struct {
	db *gorm.DB
}

func NewStaleOrders(conn *gorm.DB) *StaleOrders {
	return &StaleOrders{db: conn}
}

// FindStale returns up to limit order ids, oldest first, whose status is
// status and whose last update is before the cutoff.
func (s *StaleOrders) FindStale(ctx context.Context, status enums.OrderStatus, before time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND updated_at < ?", status, before).
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

type OrderExpiryJobParams struct {
	Logger              *logger.Logger
	Reader              staleOrderReader
	Orders              orderCanceller
	PendingPaymentTTL   time.Duration
	AwaitingExchangeTTL time.Duration
	BatchSize           int
}

type expiryRule struct {
	status enums.OrderStatus
	ttl    time.Duration
	reason string
}

// NewOrderExpiryJob cancels unpaid orders and unanswered exchange requests
// once they outlive their TTL.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("stale order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &orderExpiryJob{
		logg:   params.Logger,
		reader: params.Reader,
		orders: params.Orders,
		batch:  batch,
		rules: []expiryRule{
			{status: enums.OrderStatusPendingPayment, ttl: durationOr(params.PendingPaymentTTL, defaultPendingPaymentTTL), reason: ReasonPaymentExpired},
			{status: enums.OrderStatusAwaitingCounterparty, ttl: durationOr(params.AwaitingExchangeTTL, defaultAwaitingExchangeTTL), reason: ReasonExchangeExpired},
		},
		now: time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	reader staleOrderReader
	orders orderCanceller
	batch  int
	rules  []expiryRule
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

// Run handles at most one batch per rule; the next cycle picks up the rest.
func (j *orderExpiryJob) Run(ctx context.Context) error {
	var errs error
	for _, rule := range j.rules {
		errs = multierr.Append(errs, j.expire(ctx, rule))
	}
	return errs
}

func (j *orderExpiryJob) expire(ctx context.Context, rule expiryRule) error {
	cutoff := j.now().UTC().Add(-rule.ttl)
	ids, err := j.reader.FindStale(ctx, rule.status, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find stale %s orders: %w", rule.status, err)
	}

	var errs error
	cancelled, skipped := 0, 0
	for _, id := range ids {
		_, err := j.orders.Cancel(ctx, id, rule.reason, orders.SystemActor)
		switch {
		case err == nil:
			cancelled++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			// moved on since the read
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", id, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"status":    rule.status,
		"cutoff":    cutoff,
		"found":     len(ids),
		"cancelled": cancelled,
		"skipped":   skipped,
	}), "stale orders expired")
	return errs
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
