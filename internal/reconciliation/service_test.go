package reconciliation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/internal/orders"
	"github.com/merakilabs/marketplace-backend/internal/payments"
	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/dbtest"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/metrics"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: make(map[string]string)}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, _ any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = "1"
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type fixture struct {
	conn   *db.Client
	outbox *outbox.Repository
	ledger ledger.Service
	store  *memoryStore
	buyer  models.Account
	seller models.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn.DB()))
	require.NoError(t, err)
	return fixture{
		conn:   conn,
		outbox: outbox.NewRepository(conn.DB()),
		ledger: ledgerSvc,
		store:  newMemoryStore(),
		buyer:  dbtest.SeedAccount(t, conn.DB(), "buyer@example.com"),
		seller: dbtest.SeedAccount(t, conn.DB(), "seller@example.com"),
	}
}

func (f fixture) service(t *testing.T, guarded bool) Service {
	t.Helper()
	var guard *IdempotencyGuard
	if guarded {
		var err error
		guard, err = NewIdempotencyGuard(f.store, time.Hour, "payments")
		require.NoError(t, err)
	}
	svc, err := NewService(ServiceParams{
		Sessions: payments.NewSessionRepository(f.conn.DB()),
		Orders:   orders.NewRepository(f.conn.DB()),
		Ledger:   f.ledger,
		Tx:       f.conn,
		Outbox:   outbox.NewService(f.outbox, nil),
		Locks:    keylock.New(),
		Guard:    guard,
		Metrics:  metrics.New(),
	})
	require.NoError(t, err)
	return svc
}

func (f fixture) order(t *testing.T, status enums.OrderStatus, total string) models.Order {
	t.Helper()
	return dbtest.SeedOrder(t, f.conn.DB(), dbtest.OrderSeed{
		Buyer:  f.buyer.ID,
		Seller: f.seller.ID,
		Status: status,
		Total:  total,
	})
}

func (f fixture) session(t *testing.T, order models.Order) models.PaymentSession {
	t.Helper()
	session := models.PaymentSession{
		OrderID:        order.ID,
		PayerAccountID: order.BuyerAccountID,
		Amount:         order.TotalMoney,
		Currency:       order.Currency,
		Provider:       "fake",
		GatewayRef:     uuid.NewString(),
		CheckoutURL:    "https://pay.example.com",
	}
	require.NoError(t, f.conn.DB().Create(&session).Error)
	return session
}

func (f fixture) status(t *testing.T, orderID uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.DB().First(&order, "id = ?", orderID).Error)
	return order.Status
}

func (f fixture) rows(t *testing.T, orderID uuid.UUID) []models.Transaction {
	t.Helper()
	rows, err := f.ledger.GetByOrder(context.Background(), orderID)
	require.NoError(t, err)
	return rows
}

func amountOf(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func eventTypes(t *testing.T, repo *outbox.Repository, aggregate enums.OutboxAggregateType, id uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	events, err := repo.ListByAggregate(context.Background(), aggregate, id)
	require.NoError(t, err)
	types := make([]enums.OutboxEventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType)
	}
	return types
}

func TestOnSuccessPaysOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, true)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPendingPayment, "30.00")
	session := f.session(t, order)

	result, err := svc.OnSuccess(ctx, Notification{TransactionID: session.ID, Amount: amountOf("30")})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, result.Order.Status)
	require.NotNil(t, result.Order.PaidAt)
	require.Equal(t, enums.TransactionOutcomeSuccess, result.Transaction.Outcome)

	require.Equal(t, enums.OrderStatusPaid, f.status(t, order.ID))
	require.Len(t, f.rows(t, order.ID), 1)
	require.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid}, eventTypes(t, f.outbox, enums.AggregateOrder, order.ID))
}

func TestOnSuccessUsesSessionAmountWhenAbsent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusPendingPayment, "12.00")
	session := f.session(t, order)

	result, err := f.service(t, false).OnSuccess(context.Background(), Notification{TransactionID: session.ID})
	require.NoError(t, err)
	require.True(t, result.Transaction.Amount.Equal(decimal.RequireFromString("12")))
}

func TestOnSuccessReplays(t *testing.T) {
	t.Parallel()
	for _, guarded := range []bool{true, false} {
		f := newFixture(t)
		svc := f.service(t, guarded)
		ctx := context.Background()
		order := f.order(t, enums.OrderStatusPendingPayment, "30.00")
		session := f.session(t, order)

		_, err := svc.OnSuccess(ctx, Notification{TransactionID: session.ID})
		require.NoError(t, err)
		_, err = svc.OnSuccess(ctx, Notification{TransactionID: session.ID})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification), "guarded=%v: %v", guarded, err)

		other := f.session(t, order)
		_, err = svc.OnSuccess(ctx, Notification{TransactionID: other.ID})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification), "guarded=%v: %v", guarded, err)

		require.Len(t, f.rows(t, order.ID), 1)
		require.Equal(t, enums.OrderStatusPaid, f.status(t, order.ID))
	}
}

func TestOnSuccessAmountMismatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, true)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPendingPayment, "30.00")
	session := f.session(t, order)

	_, err := svc.OnSuccess(ctx, Notification{TransactionID: session.ID, Amount: amountOf("29.99")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch))
	require.Equal(t, enums.OrderStatusPendingPayment, f.status(t, order.ID))
	require.Empty(t, f.rows(t, order.ID))
	require.Equal(t, []enums.OutboxEventType{enums.EventPaymentMismatch}, eventTypes(t, f.outbox, enums.AggregateTransaction, session.ID))

	// A retried mismatch still fails but raises no second review event.
	_, err = svc.OnSuccess(ctx, Notification{TransactionID: session.ID, Amount: amountOf("29.99")})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch))
	require.Equal(t, []enums.OutboxEventType{enums.EventPaymentMismatch}, eventTypes(t, f.outbox, enums.AggregateTransaction, session.ID))

	// The guard key was released, so a corrected notification goes through.
	_, err = svc.OnSuccess(ctx, Notification{TransactionID: session.ID, Amount: amountOf("30")})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, f.status(t, order.ID))
}

func TestOnSuccessRejectsClosedOrders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, true)
	ctx := context.Background()

	for _, status := range []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusRefused, enums.OrderStatusAwaitingCounterparty} {
		order := f.order(t, status, "10.00")
		session := f.session(t, order)
		_, err := svc.OnSuccess(ctx, Notification{TransactionID: session.ID})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidOrderState), "%s: %v", status, err)
		require.Empty(t, f.rows(t, order.ID))
		require.Equal(t, status, f.status(t, order.ID))
	}
}

func TestOnSuccessSettledOrderIsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	order := f.order(t, enums.OrderStatusDelivering, "10.00")
	session := f.session(t, order)

	_, err := f.service(t, true).OnSuccess(context.Background(), Notification{TransactionID: session.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification))
	require.Equal(t, enums.OrderStatusDelivering, f.status(t, order.ID))
}

func TestOnSuccessUnknownTransaction(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, true)

	_, err := svc.OnSuccess(context.Background(), Notification{TransactionID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.OnSuccess(context.Background(), Notification{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestOnFailureRecordsAttempt(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, false)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPendingPayment, "30.00")
	failed := f.session(t, order)

	result, err := svc.OnFailure(ctx, Notification{TransactionID: failed.ID})
	require.NoError(t, err)
	require.Equal(t, enums.TransactionOutcomeFailed, result.Transaction.Outcome)
	require.Equal(t, enums.OrderStatusPendingPayment, f.status(t, order.ID))
	require.Equal(t, []enums.OutboxEventType{enums.EventPaymentFailed}, eventTypes(t, f.outbox, enums.AggregateTransaction, failed.ID))

	_, err = svc.OnFailure(ctx, Notification{TransactionID: failed.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification))

	retry := f.session(t, order)
	_, err = svc.OnSuccess(ctx, Notification{TransactionID: retry.ID})
	require.NoError(t, err)

	rows := f.rows(t, order.ID)
	require.Len(t, rows, 2)
	has, err := f.ledger.HasSuccess(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, has)
}

func TestConcurrentSuccessesSettleOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	svc := f.service(t, true)
	ctx := context.Background()
	order := f.order(t, enums.OrderStatusPendingPayment, "30.00")

	sessions := make([]models.PaymentSession, 8)
	for i := range sessions {
		sessions[i] = f.session(t, order)
	}

	var (
		mu        sync.Mutex
		succeeded int
	)
	var g errgroup.Group
	for _, session := range sessions {
		id := session.ID
		g.Go(func() error {
			_, err := svc.OnSuccess(ctx, Notification{TransactionID: id})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			}
			if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateNotification) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 1, succeeded)
	require.Len(t, f.rows(t, order.ID), 1)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
