package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/internal/accounts"
	"github.com/merakilabs/marketplace-backend/internal/ledger"
	"github.com/merakilabs/marketplace-backend/pkg/db"
	"github.com/merakilabs/marketplace-backend/pkg/db/dbtest"
	"github.com/merakilabs/marketplace-backend/pkg/db/models"
	"github.com/merakilabs/marketplace-backend/pkg/enums"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/keylock"
	"github.com/merakilabs/marketplace-backend/pkg/metrics"
	"github.com/merakilabs/marketplace-backend/pkg/outbox"
	"github.com/merakilabs/marketplace-backend/pkg/pagination"
)

type stubWithdrawer struct {
	withdrawn []uuid.UUID
}

func (s *stubWithdrawer) WithdrawForOrder(_ context.Context, _ *gorm.DB, orderID uuid.UUID) error {
	s.withdrawn = append(s.withdrawn, orderID)
	return nil
}

type fixture struct {
	conn      *db.Client
	svc       Service
	outbox    *outbox.Repository
	withdrawn *stubWithdrawer
	buyer     models.Account
	seller    models.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	outboxRepo := outbox.NewRepository(conn.DB())
	withdrawer := &stubWithdrawer{}
	resolver, err := accounts.NewService(accounts.NewRepository(conn.DB()))
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn.DB()), conn, outbox.NewService(outboxRepo, nil), keylock.New(), withdrawer, resolver, metrics.New())
	require.NoError(t, err)
	return fixture{
		conn:      conn,
		svc:       svc,
		outbox:    outboxRepo,
		withdrawn: withdrawer,
		buyer:     dbtest.SeedAccount(t, conn.DB(), "buyer@example.com"),
		seller:    dbtest.SeedAccount(t, conn.DB(), "seller@example.com"),
	}
}

func (f fixture) seed(t *testing.T, status enums.OrderStatus, total string) models.Order {
	t.Helper()
	return dbtest.SeedOrder(t, f.conn.DB(), dbtest.OrderSeed{
		Buyer:  f.buyer.ID,
		Seller: f.seller.ID,
		Status: status,
		Total:  total,
	})
}

func TestCanTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from enums.OrderStatus
		to   enums.OrderStatus
		ok   bool
	}{
		{enums.OrderStatusAwaitingCounterparty, enums.OrderStatusPendingPayment, true},
		{enums.OrderStatusAwaitingCounterparty, enums.OrderStatusRefused, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusPaid, true},
		{enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, true},
		{enums.OrderStatusPaid, enums.OrderStatusDelivering, true},
		{enums.OrderStatusDelivering, enums.OrderStatusCompleted, true},
		{enums.OrderStatusPaid, enums.OrderStatusCancelled, false},
		{enums.OrderStatusPaid, enums.OrderStatusPendingPayment, false},
		{enums.OrderStatusCompleted, enums.OrderStatusDelivering, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPendingPayment, false},
		{enums.OrderStatusRefused, enums.OrderStatusCancelled, false},
		{enums.OrderStatusPendingPayment, enums.OrderStatusCompleted, false},
		{enums.OrderStatusPendingPayment, enums.OrderStatusDelivering, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestDeliveryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seed(t, enums.OrderStatusPaid, "25.00")

	_, err := f.svc.AdvanceToDelivering(ctx, order.ID, Actor{AccountID: f.buyer.ID, Role: enums.AccountRoleCustomer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	got, err := f.svc.AdvanceToDelivering(ctx, order.ID, Actor{AccountID: f.seller.ID, Role: enums.AccountRoleCustomer})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivering, got.Status)
	require.NotNil(t, got.DeliveringAt)

	_, err = f.svc.AdvanceToDelivering(ctx, order.ID, Actor{AccountID: f.seller.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	got, err = f.svc.FinishDelivering(ctx, order.ID, Actor{AccountID: f.buyer.ID, Role: enums.AccountRoleCustomer})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, got.Status)

	stored, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Lines, 1)

	events, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, enums.EventOrderDelivering, events[0].EventType)
	require.Equal(t, enums.EventOrderCompleted, events[1].EventType)

	var count int64
	require.NoError(t, f.conn.DB().Model(&models.Transaction{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAdvanceRequiresPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := Actor{AccountID: f.seller.ID, Role: enums.AccountRoleCustomer}

	for _, total := range []string{"9.99", "0"} {
		pending := f.seed(t, enums.OrderStatusPendingPayment, total)
		_, err := f.svc.AdvanceToDelivering(ctx, pending.ID, seller)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "total %s: %v", total, err)
	}
}

func TestSettleFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(f.conn.DB()))
	require.NoError(t, err)
	events := outbox.NewService(f.outbox, nil)
	repo := NewRepository(f.conn.DB())

	owed := f.seed(t, enums.OrderStatusPendingPayment, "4.00")
	free := f.seed(t, enums.OrderStatusPendingPayment, "0")
	err = f.conn.WithTx(ctx, func(tx *gorm.DB) error {
		settled, err := SettleFree(ctx, tx, repo.WithTx(tx), ledgerSvc, events, &owed)
		require.False(t, settled)
		if err != nil {
			return err
		}
		settled, err = SettleFree(ctx, tx, repo.WithTx(tx), ledgerSvc, events, &free)
		require.True(t, settled)
		return err
	})
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, free.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	paid, err := ledgerSvc.HasSuccess(ctx, free.ID)
	require.NoError(t, err)
	require.True(t, paid)

	stored, err = f.svc.Get(ctx, owed.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPendingPayment, stored.Status)
	paid, err = ledgerSvc.HasSuccess(ctx, owed.ID)
	require.NoError(t, err)
	require.False(t, paid)

	got, err := f.svc.AdvanceToDelivering(ctx, free.ID, Actor{AccountID: f.seller.ID, Role: enums.AccountRoleCustomer})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivering, got.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Actor{AccountID: f.buyer.ID, Role: enums.AccountRoleCustomer}

	paid := f.seed(t, enums.OrderStatusPaid, "10")
	_, err := f.svc.Cancel(ctx, paid.ID, "changed my mind", buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	pending := f.seed(t, enums.OrderStatusPendingPayment, "10")
	_, err = f.svc.Cancel(ctx, pending.ID, "", Actor{AccountID: f.seller.ID, Role: enums.AccountRoleCustomer})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	got, err := f.svc.Cancel(ctx, pending.ID, "changed my mind", buyer)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	require.Equal(t, "changed my mind", *got.CancelReason)
	require.Empty(t, f.withdrawn.withdrawn)

	staff := dbtest.SeedAccount(t, f.conn.DB(), "staff@example.com")
	require.NoError(t, f.conn.DB().Model(&models.Account{}).Where("id = ?", staff.ID).Update("role", enums.AccountRoleAdmin).Error)
	admin := Actor{AccountID: staff.ID, Role: enums.AccountRoleAdmin}
	other := f.seed(t, enums.OrderStatusPendingPayment, "10")
	got, err = f.svc.Cancel(ctx, other.ID, "", admin)
	require.NoError(t, err)
	require.Equal(t, defaultCancelReason, *got.CancelReason)
}

func TestTransitionsRejectInactiveAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := Actor{AccountID: f.buyer.ID, Role: enums.AccountRoleCustomer}
	seller := Actor{AccountID: f.seller.ID, Role: enums.AccountRoleCustomer}
	pending := f.seed(t, enums.OrderStatusPendingPayment, "10")
	paid := f.seed(t, enums.OrderStatusPaid, "10")
	delivering := f.seed(t, enums.OrderStatusDelivering, "10")

	dbtest.SetAccountStatus(t, f.conn.DB(), f.buyer.ID, enums.AccountStatusSuspended)
	dbtest.SetAccountStatus(t, f.conn.DB(), f.seller.ID, enums.AccountStatusClosed)

	_, err := f.svc.Cancel(ctx, pending.ID, "", buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "cancel: %v", err)
	_, err = f.svc.AdvanceToDelivering(ctx, paid.ID, seller)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "advance: %v", err)
	_, err = f.svc.FinishDelivering(ctx, delivering.ID, buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "finish: %v", err)

	got, err := f.svc.Cancel(ctx, pending.ID, "expired", SystemActor)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, got.Status)

	events, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrder, paid.ID)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestRoleComesFromStoredAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seed(t, enums.OrderStatusPendingPayment, "10")
	stranger := dbtest.SeedAccount(t, f.conn.DB(), "stranger@example.com")

	_, err := f.svc.Cancel(ctx, order.ID, "", Actor{AccountID: stranger.ID, Role: enums.AccountRoleAdmin})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
}

func TestCancelAwaitingExchangeWithdrawsNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	request := dbtest.SeedOrder(t, f.conn.DB(), dbtest.OrderSeed{
		Type:   enums.OrderTypeExchangeRequest,
		Buyer:  f.buyer.ID,
		Seller: f.seller.ID,
		Status: enums.OrderStatusAwaitingCounterparty,
		Total:  "5",
	})

	got, err := f.svc.Cancel(ctx, request.ID, "", Actor{AccountID: f.buyer.ID, Role: enums.AccountRoleCustomer})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, got.Status)
	require.Equal(t, []uuid.UUID{request.ID}, f.withdrawn.withdrawn)
}

func TestCompareAndSetStatusLosesRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seed(t, enums.OrderStatusPendingPayment, "10")
	repo := NewRepository(f.conn.DB())

	swapped, err := repo.CompareAndSetStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusPaid, nil)
	require.NoError(t, err)
	require.True(t, swapped)

	swapped, err = repo.CompareAndSetStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, nil)
	require.NoError(t, err)
	require.False(t, swapped)

	stale := order
	err = Transition(ctx, repo, &stale, enums.OrderStatusCancelled, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := dbtest.SeedAccount(t, f.conn.DB(), "stranger@example.com")

	first := f.seed(t, enums.OrderStatusPendingPayment, "1")
	second := f.seed(t, enums.OrderStatusPaid, "2")
	exchange := dbtest.SeedOrder(t, f.conn.DB(), dbtest.OrderSeed{
		Type:   enums.OrderTypeExchangeRequest,
		Buyer:  stranger.ID,
		Seller: f.buyer.ID,
		Status: enums.OrderStatusAwaitingCounterparty,
		Total:  "3",
	})

	all, err := f.svc.ListAll(ctx, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, all.Items, 3)
	require.Empty(t, all.NextCursor)

	byType, err := f.svc.ListByType(ctx, enums.OrderTypeExchangeRequest, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, byType.Items, 1)
	require.Equal(t, exchange.ID, byType.Items[0].ID)

	_, err = f.svc.ListByType(ctx, enums.OrderType("rental"), pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	asBuyer, err := f.svc.ListForAccount(ctx, f.buyer.ID, PartyBuyer, pagination.Params{})
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, orderIDs(asBuyer.Items))

	anySide, err := f.svc.ListForAccount(ctx, f.buyer.ID, PartyAny, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, anySide.Items, 3)

	asSeller, err := f.svc.ListForAccount(ctx, f.seller.ID, PartySeller, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, asSeller.Items, 1)
	require.NotEmpty(t, asSeller.NextCursor)

	none, err := f.svc.ListForAccount(ctx, uuid.New(), PartyAny, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, none.Items)
}

func orderIDs(rows []models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}
