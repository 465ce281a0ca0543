package service

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/pkg/api"
)

func TestCreateOrder(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)

	order := createTastingOrder(t, orders, 4)

	if order.ID == "" {
		t.Error("expected non-empty order ID")
	}
	if order.Status != models.OrderPending {
		t.Errorf("status: expected pending, got %s", order.Status)
	}
	if order.PaymentStatus != models.PaymentPending {
		t.Errorf("payment status: expected pending, got %s", order.PaymentStatus)
	}
	if order.Version != 1 {
		t.Errorf("version: expected 1, got %d", order.Version)
	}
	if len(order.Items) != 1 || order.Items[0].ID == "" {
		t.Fatalf("expected one item with an ID, got %+v", order.Items)
	}
	assertDecimal(t, "subtotal", order.Subtotal, "1000")
	assertDecimal(t, "discount", order.DiscountAmount, "100")
	assertDecimal(t, "tax", order.Tax, "72")
	assertDecimal(t, "total", order.Total, "972")
}

func TestCreateOrder_Validation(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)

	tests := []struct {
		name string
		req  *api.CreateOrderRequest
	}{
		{"dine in without table", &api.CreateOrderRequest{Kind: models.KindDineIn}},
		{"unknown table", &api.CreateOrderRequest{Kind: models.KindDineIn, TableNumber: intPtr(99)}},
		{"takeaway with table", &api.CreateOrderRequest{Kind: models.KindTakeaway, TableNumber: intPtr(4)}},
		{"unknown kind", &api.CreateOrderRequest{Kind: "drive_thru"}},
		{"zero quantity", &api.CreateOrderRequest{
			Kind:  models.KindTakeaway,
			Items: []byte(`[{"name":"Soup","quantity":0,"unit_price":"5"}]`),
		}},
		{"negative price", &api.CreateOrderRequest{
			Kind:  models.KindTakeaway,
			Items: []byte(`[{"name":"Soup","quantity":1,"unit_price":"-5"}]`),
		}},
		{"percent over 100", &api.CreateOrderRequest{
			Kind:     models.KindTakeaway,
			Discount: &models.Discount{Type: models.DiscountPercent, Value: dec("120")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orders.CreateOrder(context.Background(), connect.NewRequest(tt.req))
			assertCode(t, err, connect.CodeInvalidArgument)
		})
	}
}

func TestCreateOrder_ItemPayloadShapes(t *testing.T) {
	env := setupTestServer(t)
	orders, _ := env.clients(t, testVenue)

	payloads := map[string]string{
		"array":         `[{"name":"Soup","quantity":1,"unit_price":"8"}]`,
		"single object": `{"name":"Soup","quantity":1,"unit_price":"8"}`,
		"string":        `"[{\"name\":\"Soup\",\"quantity\":1,\"unit_price\":\"8\"}]"`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			resp, err := orders.CreateOrder(context.Background(), connect.NewRequest(&api.CreateOrderRequest{
				Kind:  models.KindTakeaway,
				Items: []byte(payload),
			}))
			if err != nil {
				t.Fatalf("CreateOrder failed: %v", err)
			}
			order := resp.Msg.Order
			if order.TableNumber != nil {
				t.Errorf("expected no table, got %d", *order.TableNumber)
			}
			if len(order.Items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(order.Items))
			}
			assertDecimal(t, "subtotal", order.Subtotal, "8")
			assertDecimal(t, "tax", order.Tax, "1")
			assertDecimal(t, "total", order.Total, "9")
		})
	}
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	first, err := orders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("500"),
		Method:         models.MethodCard,
		IdempotencyKey: "pay-1",
	}))
	if err != nil {
		t.Fatalf("first RecordPayment failed: %v", err)
	}
	if first.Msg.Order.PaymentStatus != models.PaymentPartiallyPaid {
		t.Errorf("payment status: expected partially_paid, got %s", first.Msg.Order.PaymentStatus)
	}
	if first.Msg.Order.Status != models.OrderPending {
		t.Errorf("status: expected pending, got %s", first.Msg.Order.Status)
	}
	assertDecimal(t, "remaining", first.Msg.Remaining, "472")
	if first.Msg.TableClearable {
		t.Error("table should not be clearable after a partial payment")
	}

	second, err := orders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("472"),
		Method:         models.MethodCash,
		IdempotencyKey: "pay-2",
		Tendered:       dec("500"),
	}))
	if err != nil {
		t.Fatalf("second RecordPayment failed: %v", err)
	}
	if second.Msg.Order.PaymentStatus != models.PaymentPaid {
		t.Errorf("payment status: expected paid, got %s", second.Msg.Order.PaymentStatus)
	}
	if second.Msg.Order.Status != models.OrderCompleted {
		t.Errorf("status: expected completed, got %s", second.Msg.Order.Status)
	}
	assertDecimal(t, "remaining", second.Msg.Remaining, "0")
	assertDecimal(t, "change", second.Msg.Change, "28")
	if !second.Msg.TableClearable {
		t.Error("expected table to be clearable")
	}

	ledger, err := orders.ListPayments(ctx, connect.NewRequest(&api.ListPaymentsRequest{OrderID: order.ID}))
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	if len(ledger.Msg.Payments) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(ledger.Msg.Payments))
	}
	if ledger.Msg.Payments[0].ID != "pay-1" || ledger.Msg.Payments[1].ID != "pay-2" {
		t.Errorf("ledger order: got %s, %s", ledger.Msg.Payments[0].ID, ledger.Msg.Payments[1].ID)
	}
	if ledger.Msg.Payments[0].TerminalID != "till-1" {
		t.Errorf("terminal: expected till-1, got %q", ledger.Msg.Payments[0].TerminalID)
	}
	assertDecimal(t, "amount paid", ledger.Msg.AmountPaid, "972")

	// Completed orders accept no further payments.
	_, err = orders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("1"),
		Method:         models.MethodCard,
		IdempotencyKey: "pay-3",
	}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestRecordPayment_CashWithChange(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)

	resp, err := orders.RecordPayment(context.Background(), connect.NewRequest(&api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("972"),
		Method:         models.MethodCash,
		IdempotencyKey: "cash-1",
		Tendered:       dec("1000"),
	}))
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	assertDecimal(t, "change", resp.Msg.Change, "28")
	assertDecimal(t, "ledger amount", resp.Msg.Payment.Amount, "972")
	if resp.Msg.Order.Status != models.OrderCompleted {
		t.Errorf("status: expected completed, got %s", resp.Msg.Order.Status)
	}
	if !resp.Msg.TableClearable {
		t.Error("expected table to be clearable")
	}
}

func TestRecordPayment_Idempotent(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	other := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	req := &api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("300"),
		Method:         models.MethodCard,
		IdempotencyKey: "retry-me",
	}
	first, err := orders.RecordPayment(ctx, connect.NewRequest(req))
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if first.Msg.Replayed {
		t.Error("first call should not be a replay")
	}

	second, err := orders.RecordPayment(ctx, connect.NewRequest(req))
	if err != nil {
		t.Fatalf("retried RecordPayment failed: %v", err)
	}
	if !second.Msg.Replayed {
		t.Error("retry should be reported as a replay")
	}
	assertDecimal(t, "amount paid", second.Msg.Order.AmountPaid, "300")
	assertDecimal(t, "remaining", second.Msg.Remaining, "672")

	ledger, err := orders.ListPayments(ctx, connect.NewRequest(&api.ListPaymentsRequest{OrderID: order.ID}))
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	if len(ledger.Msg.Payments) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", len(ledger.Msg.Payments))
	}

	t.Run("key reused on another order", func(t *testing.T) {
		reuse := *req
		reuse.OrderID = other.ID
		_, err := orders.RecordPayment(ctx, connect.NewRequest(&reuse))
		assertCode(t, err, connect.CodeInvalidArgument)
	})
}

func TestRecordPayment_Validation(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)

	tests := []struct {
		name string
		req  api.RecordPaymentRequest
		want connect.Code
	}{
		{"missing key", api.RecordPaymentRequest{OrderID: order.ID, Amount: dec("10"), Method: models.MethodCard}, connect.CodeInvalidArgument},
		{"zero amount", api.RecordPaymentRequest{OrderID: order.ID, Amount: dec("0"), Method: models.MethodCard, IdempotencyKey: "v1"}, connect.CodeInvalidArgument},
		{"negative amount", api.RecordPaymentRequest{OrderID: order.ID, Amount: dec("-5"), Method: models.MethodCard, IdempotencyKey: "v2"}, connect.CodeInvalidArgument},
		{"unknown method", api.RecordPaymentRequest{OrderID: order.ID, Amount: dec("10"), Method: "iou", IdempotencyKey: "v3"}, connect.CodeInvalidArgument},
		{"tendered on card", api.RecordPaymentRequest{OrderID: order.ID, Amount: dec("10"), Method: models.MethodCard, Tendered: dec("20"), IdempotencyKey: "v4"}, connect.CodeInvalidArgument},
		{"tendered below amount", api.RecordPaymentRequest{OrderID: order.ID, Amount: dec("10"), Method: models.MethodCash, Tendered: dec("5"), IdempotencyKey: "v5"}, connect.CodeInvalidArgument},
		{"unknown order", api.RecordPaymentRequest{OrderID: "missing", Amount: dec("10"), Method: models.MethodCard, IdempotencyKey: "v6"}, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orders.RecordPayment(context.Background(), connect.NewRequest(&tt.req))
			assertCode(t, err, tt.want)
		})
	}
}

func TestZeroTotalOrder(t *testing.T) {
	env := setupTestServer(t)
	orders, _ := env.clients(t, testVenue)
	ctx := context.Background()

	t.Run("empty order is paid and can be completed", func(t *testing.T) {
		created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{Kind: models.KindTakeaway}))
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		order := created.Msg.Order
		assertDecimal(t, "total", order.Total, "0")
		if order.PaymentStatus != models.PaymentPaid {
			t.Errorf("payment status: expected paid, got %s", order.PaymentStatus)
		}

		resp, err := orders.UpdateOrderStatus(ctx, connect.NewRequest(&api.UpdateOrderStatusRequest{
			OrderID: order.ID, Status: models.OrderCompleted,
		}))
		if err != nil {
			t.Fatalf("UpdateOrderStatus failed: %v", err)
		}
		if resp.Msg.Order.Status != models.OrderCompleted || resp.Msg.Order.PaymentStatus != models.PaymentPaid {
			t.Errorf("expected completed and paid, got %s / %s", resp.Msg.Order.Status, resp.Msg.Order.PaymentStatus)
		}
	})

	t.Run("fully discounted order takes a payment", func(t *testing.T) {
		created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{
			Kind:     models.KindTakeaway,
			Items:    []byte(`[{"name":"Birthday cake","quantity":1,"unit_price":"30"}]`),
			Discount: &models.Discount{Type: models.DiscountPercent, Value: dec("100")},
		}))
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		order := created.Msg.Order
		assertDecimal(t, "total", order.Total, "0")
		if order.PaymentStatus != models.PaymentPaid {
			t.Errorf("payment status: expected paid, got %s", order.PaymentStatus)
		}

		resp, err := orders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
			OrderID:        order.ID,
			Amount:         dec("2"),
			Method:         models.MethodCash,
			IdempotencyKey: "tip-1",
		}))
		if err != nil {
			t.Fatalf("RecordPayment failed: %v", err)
		}
		if resp.Msg.Order.Status != models.OrderCompleted {
			t.Errorf("status: expected completed, got %s", resp.Msg.Order.Status)
		}
		assertDecimal(t, "amount paid", resp.Msg.Order.AmountPaid, "2")
		assertDecimal(t, "remaining", resp.Msg.Remaining, "0")
	})

	t.Run("refunding every item before payment", func(t *testing.T) {
		created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{
			Kind:  models.KindTakeaway,
			Items: []byte(`{"name":"Soup","quantity":1,"unit_price":"8"}`),
		}))
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		order := created.Msg.Order
		if order.PaymentStatus != models.PaymentPending {
			t.Fatalf("payment status: expected pending, got %s", order.PaymentStatus)
		}

		resp, err := orders.RefundItem(ctx, connect.NewRequest(&api.RefundItemRequest{
			OrderID: order.ID, ItemID: order.Items[0].ID, Reason: "cold",
		}))
		if err != nil {
			t.Fatalf("RefundItem failed: %v", err)
		}
		assertDecimal(t, "total", resp.Msg.Order.Total, "0")
		if resp.Msg.Order.PaymentStatus != models.PaymentPaid {
			t.Errorf("payment status: expected paid, got %s", resp.Msg.Order.PaymentStatus)
		}
	})
}

func TestComputeSplit(t *testing.T) {
	env := setupTestServer(t)
	orders, _ := env.clients(t, testVenue)
	ctx := context.Background()

	// 926 plus 8% tax rounds to a total of 1000.
	created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{
		Kind:  models.KindTakeaway,
		Items: []byte(`[{"name":"Party platter","quantity":1,"unit_price":"926"}]`),
	}))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	order := created.Msg.Order
	assertDecimal(t, "total", order.Total, "1000")

	split, err := orders.ComputeSplit(ctx, connect.NewRequest(&api.ComputeSplitRequest{OrderID: order.ID, Count: 3}))
	if err != nil {
		t.Fatalf("ComputeSplit failed: %v", err)
	}
	assertDecimal(t, "per head", split.Msg.PerHead, "334")
	assertDecimal(t, "collected", split.Msg.Collected, "1002")
	assertDecimal(t, "overage", split.Msg.Overage, "2")

	if _, err := orders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("334"),
		Method:         models.MethodCard,
		IdempotencyKey: "share-1",
	})); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	rest, err := orders.ComputeSplit(ctx, connect.NewRequest(&api.ComputeSplitRequest{OrderID: order.ID, Count: 2, OfRemaining: true}))
	if err != nil {
		t.Fatalf("ComputeSplit of remaining failed: %v", err)
	}
	assertDecimal(t, "basis", rest.Msg.Basis, "666")
	assertDecimal(t, "per head", rest.Msg.PerHead, "333")

	_, err = orders.ComputeSplit(ctx, connect.NewRequest(&api.ComputeSplitRequest{OrderID: order.ID, Count: 0}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestChangeDue(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	tests := []struct {
		name string
		req  api.ChangeDueRequest
		want string
	}{
		{"against order", api.ChangeDueRequest{OrderID: order.ID, Tendered: dec("1000")}, "28"},
		{"explicit total", api.ChangeDueRequest{Tendered: dec("50"), Total: dec("42.5")}, "7.5"},
		{"short tender", api.ChangeDueRequest{Tendered: dec("10"), Total: dec("42")}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := orders.ChangeDue(ctx, connect.NewRequest(&tt.req))
			if err != nil {
				t.Fatalf("ChangeDue failed: %v", err)
			}
			assertDecimal(t, "change", resp.Msg.Change, tt.want)
		})
	}
}

func TestKitchenFlow(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 2)
	ctx := context.Background()

	created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{
		TableNumber: intPtr(2),
		Items: []byte(`[
			{"name":"Soup","quantity":1,"unit_price":"8"},
			{"name":"Steak","quantity":1,"unit_price":"30"}
		]`),
	}))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	order := created.Msg.Order
	if order.Kind != models.KindDineIn {
		t.Errorf("kind: expected dine_in by default, got %s", order.Kind)
	}
	soup := order.Items[0].ID

	resp, err := orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
		OrderID: order.ID, ItemID: soup, Status: models.ItemPreparing,
	}))
	if err != nil {
		t.Fatalf("SetItemStatus failed: %v", err)
	}
	if resp.Msg.Order.Status != models.OrderPreparing {
		t.Errorf("status: expected preparing, got %s", resp.Msg.Order.Status)
	}

	_, err = orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
		OrderID: order.ID, ItemID: soup, Status: models.ItemPending,
	}))
	assertCode(t, err, connect.CodeInvalidArgument)

	resp, err = orders.StartOrder(ctx, connect.NewRequest(&api.StartOrderRequest{OrderID: order.ID}))
	if err != nil {
		t.Fatalf("StartOrder failed: %v", err)
	}
	for _, item := range resp.Msg.Order.Items {
		if item.Status != models.ItemPreparing {
			t.Errorf("item %s: expected preparing, got %s", item.Name, item.Status)
		}
	}

	resp, err = orders.CompleteOrder(ctx, connect.NewRequest(&api.CompleteOrderRequest{OrderID: order.ID}))
	if err != nil {
		t.Fatalf("CompleteOrder failed: %v", err)
	}
	if resp.Msg.Order.Status != models.OrderReady {
		t.Errorf("status: expected ready, got %s", resp.Msg.Order.Status)
	}

	resp, err = orders.UpdateOrderStatus(ctx, connect.NewRequest(&api.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: models.OrderServed,
	}))
	if err != nil {
		t.Fatalf("UpdateOrderStatus failed: %v", err)
	}
	if resp.Msg.Order.Status != models.OrderServed {
		t.Errorf("status: expected served, got %s", resp.Msg.Order.Status)
	}
	for _, item := range resp.Msg.Order.Items {
		if item.Status != models.ItemServed {
			t.Errorf("item %s: expected served, got %s", item.Name, item.Status)
		}
	}

	// Completion is driven by the ledger while money is outstanding.
	_, err = orders.UpdateOrderStatus(ctx, connect.NewRequest(&api.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: models.OrderCompleted,
	}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestUpdateOrderStatus_Cancel(t *testing.T) {
	env := setupTestServer(t)
	orders, _ := env.clients(t, testVenue)
	ctx := context.Background()

	created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{
		Kind:  models.KindDelivery,
		Items: []byte(`[{"name":"Noodles","quantity":1,"unit_price":"12"}]`),
	}))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	order := created.Msg.Order

	resp, err := orders.UpdateOrderStatus(ctx, connect.NewRequest(&api.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: models.OrderCancelled,
	}))
	if err != nil {
		t.Fatalf("UpdateOrderStatus failed: %v", err)
	}
	if resp.Msg.Order.Status != models.OrderCancelled {
		t.Errorf("status: expected cancelled, got %s", resp.Msg.Order.Status)
	}

	_, err = orders.AddItems(ctx, connect.NewRequest(&api.AddItemsRequest{
		OrderID: order.ID,
		Items:   []byte(`{"name":"Spring rolls","quantity":1,"unit_price":"6"}`),
	}))
	assertCode(t, err, connect.CodeInvalidArgument)

	_, err = orders.UpdateOrderStatus(ctx, connect.NewRequest(&api.UpdateOrderStatusRequest{
		OrderID: order.ID, Status: models.OrderConfirmed,
	}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestAddItemsAndDiscount(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	resp, err := orders.AddItems(ctx, connect.NewRequest(&api.AddItemsRequest{
		OrderID: order.ID,
		Items:   []byte(`[{"name":"Wine","quantity":2,"unit_price":"50"}]`),
	}))
	if err != nil {
		t.Fatalf("AddItems failed: %v", err)
	}
	if len(resp.Msg.Order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Msg.Order.Items))
	}
	// 1100 less 10% is 990, plus 79.2 tax rounded to 79.
	assertDecimal(t, "subtotal", resp.Msg.Order.Subtotal, "1100")
	assertDecimal(t, "total", resp.Msg.Order.Total, "1069")

	resp, err = orders.ApplyDiscount(ctx, connect.NewRequest(&api.ApplyDiscountRequest{
		OrderID:  order.ID,
		Discount: models.Discount{Type: models.DiscountAmount, Value: dec("100")},
	}))
	if err != nil {
		t.Fatalf("ApplyDiscount failed: %v", err)
	}
	assertDecimal(t, "discount", resp.Msg.Order.DiscountAmount, "100")
	assertDecimal(t, "total", resp.Msg.Order.Total, "1080")

	_, err = orders.AddItems(ctx, connect.NewRequest(&api.AddItemsRequest{OrderID: order.ID}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestRefundItem(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	ctx := context.Background()

	created, err := orders.CreateOrder(ctx, connect.NewRequest(&api.CreateOrderRequest{
		TableNumber: intPtr(4),
		Items: []byte(`[
			{"name":"Soup","quantity":1,"unit_price":"100"},
			{"name":"Steak","quantity":1,"unit_price":"400"}
		]`),
	}))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	order := created.Msg.Order
	steak := order.Items[1].ID

	resp, err := orders.RefundItem(ctx, connect.NewRequest(&api.RefundItemRequest{
		OrderID: order.ID, ItemID: steak, Reason: "overcooked",
	}))
	if err != nil {
		t.Fatalf("RefundItem failed: %v", err)
	}
	refunded := resp.Msg.Order.Item(steak)
	if refunded == nil || !refunded.Refunded || refunded.RefundReason != "overcooked" {
		t.Fatalf("expected steak refunded, got %+v", refunded)
	}
	assertDecimal(t, "subtotal", resp.Msg.Order.Subtotal, "100")
	assertDecimal(t, "total", resp.Msg.Order.Total, "108")

	t.Run("twice", func(t *testing.T) {
		_, err := orders.RefundItem(ctx, connect.NewRequest(&api.RefundItemRequest{OrderID: order.ID, ItemID: steak}))
		assertCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("status change on refunded item", func(t *testing.T) {
		_, err := orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
			OrderID: order.ID, ItemID: steak, Status: models.ItemPreparing,
		}))
		assertCode(t, err, connect.CodeInvalidArgument)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := orders.RefundItem(ctx, connect.NewRequest(&api.RefundItemRequest{OrderID: order.ID, ItemID: "nope"}))
		assertCode(t, err, connect.CodeNotFound)
	})

	t.Run("stays refunded after other writes", func(t *testing.T) {
		resp, err := orders.AddItems(ctx, connect.NewRequest(&api.AddItemsRequest{
			OrderID: order.ID,
			Items:   []byte(`{"name":"Salad","quantity":1,"unit_price":"20"}`),
		}))
		if err != nil {
			t.Fatalf("AddItems failed: %v", err)
		}
		if !resp.Msg.Order.Item(steak).Refunded {
			t.Error("refund was cleared by a later write")
		}
	})
}

func TestExpectedVersionConflict(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	resp, err := orders.ApplyDiscount(ctx, connect.NewRequest(&api.ApplyDiscountRequest{
		OrderID:         order.ID,
		Discount:        models.Discount{Type: models.DiscountPercent, Value: dec("5")},
		ExpectedVersion: order.Version,
	}))
	if err != nil {
		t.Fatalf("ApplyDiscount failed: %v", err)
	}
	if resp.Msg.Order.Version != order.Version+1 {
		t.Errorf("version: expected %d, got %d", order.Version+1, resp.Msg.Order.Version)
	}

	_, err = orders.ApplyDiscount(ctx, connect.NewRequest(&api.ApplyDiscountRequest{
		OrderID:         order.ID,
		Discount:        models.Discount{Type: models.DiscountPercent, Value: dec("50")},
		ExpectedVersion: order.Version,
	}))
	assertCode(t, err, connect.CodeAborted)
}

func TestVenueIsolation(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	otherOrders, otherTables := env.clients(t, "venue-2")
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	_, err := otherOrders.GetOrder(ctx, connect.NewRequest(&api.GetOrderRequest{OrderID: order.ID}))
	assertCode(t, err, connect.CodeNotFound)

	_, err = otherOrders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
		OrderID: order.ID, Amount: dec("1"), Method: models.MethodCard, IdempotencyKey: "x",
	}))
	assertCode(t, err, connect.CodeNotFound)

	list, err := otherOrders.ListOrders(ctx, connect.NewRequest(&api.ListOrdersRequest{}))
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if len(list.Msg.Orders) != 0 {
		t.Errorf("expected no orders for venue-2, got %d", len(list.Msg.Orders))
	}

	// Table numbers are per venue.
	createTable(t, otherTables, 4)
}

func TestListOrders(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 1)
	createTable(t, tables, 2)
	ctx := context.Background()

	createTastingOrder(t, orders, 1)
	createTastingOrder(t, orders, 2)
	paid := createTastingOrder(t, orders, 2)
	if _, err := orders.RecordPayment(ctx, connect.NewRequest(&api.RecordPaymentRequest{
		OrderID: paid.ID, Amount: dec("972"), Method: models.MethodCard, IdempotencyKey: "full",
	})); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	tests := []struct {
		name string
		req  api.ListOrdersRequest
		want int
	}{
		{"all", api.ListOrdersRequest{}, 3},
		{"active", api.ListOrdersRequest{ActiveOnly: true}, 2},
		{"table 2", api.ListOrdersRequest{TableNumber: intPtr(2)}, 2},
		{"active at table 2", api.ListOrdersRequest{ActiveOnly: true, TableNumber: intPtr(2)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := orders.ListOrders(ctx, connect.NewRequest(&tt.req))
			if err != nil {
				t.Fatalf("ListOrders failed: %v", err)
			}
			if len(resp.Msg.Orders) != tt.want {
				t.Errorf("expected %d orders, got %d", tt.want, len(resp.Msg.Orders))
			}
		})
	}
}

func TestOrderEventsPublished(t *testing.T) {
	env := setupTestServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := env.bus.Subscribe(ctx, testVenue)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	order := createTastingOrder(t, orders, 4)

	next := func() feed.Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for feed event")
		}
		return feed.Event{}
	}

	ev := next()
	if ev.Entity != feed.EntityOrders || ev.Op != feed.OpInsert || ev.ID != order.ID {
		t.Errorf("unexpected first event: %+v", ev)
	}
	if ev.Version != order.Version {
		t.Errorf("event version: expected %d, got %d", order.Version, ev.Version)
	}

	ev = next()
	if ev.Entity != feed.EntityTables || ev.Op != feed.OpUpdate {
		t.Errorf("expected table signal, got %+v", ev)
	}
}
