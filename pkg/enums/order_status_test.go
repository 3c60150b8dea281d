package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("pending_payment")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OrderStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", got)
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestOrderStatusClassification(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		terminal bool
		settled  bool
	}{
		{status: OrderStatusAwaitingCounterparty},
		{status: OrderStatusPendingPayment},
		{status: OrderStatusPaid, settled: true},
		{status: OrderStatusDelivering, settled: true},
		{status: OrderStatusCompleted, terminal: true, settled: true},
		{status: OrderStatusCancelled, terminal: true},
		{status: OrderStatusRefused, terminal: true},
	}
	for _, tt := range tests {
		if tt.status.IsTerminal() != tt.terminal {
			t.Fatalf("%s: expected terminal=%v", tt.status, tt.terminal)
		}
		if tt.status.IsSettled() != tt.settled {
			t.Fatalf("%s: expected settled=%v", tt.status, tt.settled)
		}
	}
}

func TestParseCurrencyNormalizes(t *testing.T) {
	got, err := ParseCurrency(" usd ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != CurrencyUSD || got.MinorUnits() != 2 {
		t.Fatalf("unexpected currency %s", got)
	}
	if CurrencyVND.MinorUnits() != 0 {
		t.Fatalf("expected VND to have no minor units")
	}
}
