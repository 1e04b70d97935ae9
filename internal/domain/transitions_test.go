package domain

import "testing"

func allStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusConfirmed, OrderStatusPacking, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelRequested, OrderStatusCancelled,
		OrderStatusReturnRequested, OrderStatusReturned, OrderStatusFailed,
	}
}

func TestNextAutoTransition_ChainLinks(t *testing.T) {
	t.Parallel()

	want := map[OrderStatus]OrderStatus{
		OrderStatusPaid:      OrderStatusConfirmed,
		OrderStatusConfirmed: OrderStatusPacking,
		OrderStatusShipped:   OrderStatusDelivered,
	}

	for _, status := range allStatuses() {
		next, ok := NextAutoTransition(status)
		expected, shouldHave := want[status]
		if ok != shouldHave {
			t.Fatalf("status %s: auto successor presence got=%v want=%v", status, ok, shouldHave)
		}
		if ok && next.To != expected {
			t.Fatalf("status %s: auto successor got=%s want=%s", status, next.To, expected)
		}
		if ok && next.From != status {
			t.Fatalf("status %s: auto transition source got=%s", status, next.From)
		}
	}
}

func TestTerminalStatuses_HaveNoAutoSuccessor(t *testing.T) {
	t.Parallel()

	for _, status := range allStatuses() {
		if IsTerminal(status) && HasAutoSuccessor(status) {
			t.Fatalf("terminal status %s must not have an auto successor", status)
		}
	}
}

func TestGuards_CustomerCancelOnlyPending(t *testing.T) {
	t.Parallel()

	for _, status := range allStatuses() {
		got := CanCustomerCancel(status)
		want := status == OrderStatusPending
		if got != want {
			t.Fatalf("CanCustomerCancel(%s) got=%v want=%v", status, got, want)
		}
	}
}

func TestGuards_AdminCancelExcludesFinished(t *testing.T) {
	t.Parallel()

	blocked := map[OrderStatus]bool{
		OrderStatusDelivered: true,
		OrderStatusCancelled: true,
		OrderStatusReturned:  true,
	}

	for _, status := range allStatuses() {
		got := CanAdminCancel(status)
		if got == blocked[status] {
			t.Fatalf("CanAdminCancel(%s) got=%v", status, got)
		}
	}
}

func TestGuards_ReturnFlow(t *testing.T) {
	t.Parallel()

	for _, status := range allStatuses() {
		if CanRequestReturn(status) != (status == OrderStatusDelivered) {
			t.Fatalf("CanRequestReturn(%s) unexpected", status)
		}
		if CanResolveReturn(status) != (status == OrderStatusReturnRequested) {
			t.Fatalf("CanResolveReturn(%s) unexpected", status)
		}
		if CanConfirmDelivery(status) != (status == OrderStatusShipped) {
			t.Fatalf("CanConfirmDelivery(%s) unexpected", status)
		}
	}
}

func TestOrderStatus_Valid(t *testing.T) {
	t.Parallel()

	for _, status := range allStatuses() {
		if !status.Valid() {
			t.Fatalf("status %s reported invalid", status)
		}
	}
	if OrderStatus("REFUND_PENDING").Valid() {
		t.Fatal("unknown status reported valid")
	}
}

func TestOrder_ValidateInvariants(t *testing.T) {
	t.Parallel()

	order := Order{
		ID:          "order-1",
		CustomerID:  "customer-1",
		Status:      OrderStatusPending,
		Currency:    "RUB",
		AmountMinor: 1500,
		Items: []OrderItem{
			{ID: "item-1", BookID: "book-1", Title: "Мастер и Маргарита", Qty: 3, PriceMinor: 500},
		},
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("valid order reported errors: %v", errs)
	}

	order.AmountMinor = 100
	order.CustomerID = ""
	errs := order.ValidateInvariants()
	if len(errs) != 2 {
		t.Fatalf("expected 2 invariant errors, got %v", errs)
	}
}
