package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"connectrpc.com/connect"

	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/internal/storage"
	"github.com/mmynk/tableside/pkg/api"
	"github.com/mmynk/tableside/pkg/api/apiconnect"
)

// racingStore lets a rival writer update the record just before the next
// few UpdateOrder or UpdateTable calls, so the caller loses the version race.
type racingStore struct {
	storage.Store

	mu         sync.Mutex
	orderRaces int
	tableRaces int
	rivalOrder func(*models.Order)
	rivalTable func(*models.Table)
}

func (s *racingStore) raceOrders(n int, rival func(*models.Order)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderRaces, s.rivalOrder = n, rival
}

func (s *racingStore) raceTables(n int, rival func(*models.Table)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableRaces, s.rivalTable = n, rival
}

func (s *racingStore) racesLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderRaces + s.tableRaces
}

func (s *racingStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	race, rival := s.orderRaces > 0, s.rivalOrder
	if race {
		s.orderRaces--
	}
	s.mu.Unlock()

	if race {
		current, err := s.Store.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if rival != nil {
			rival(current)
		}
		if err := s.Store.UpdateOrder(ctx, current); err != nil {
			return err
		}
	}
	return s.Store.UpdateOrder(ctx, order)
}

func (s *racingStore) UpdateTable(ctx context.Context, table *models.Table) error {
	s.mu.Lock()
	race, rival := s.tableRaces > 0, s.rivalTable
	if race {
		s.tableRaces--
	}
	s.mu.Unlock()

	if race {
		current, err := s.Store.GetTable(ctx, table.ID)
		if err != nil {
			return err
		}
		if rival != nil {
			rival(current)
		}
		if err := s.Store.UpdateTable(ctx, current); err != nil {
			return err
		}
	}
	return s.Store.UpdateTable(ctx, table)
}

func setupRacingServer(t *testing.T) (*testEnv, *racingStore) {
	t.Helper()
	racing := &racingStore{}
	env := setupTestServerWith(t, func(store storage.Store) storage.Store {
		racing.Store = store
		return racing
	})
	return env, racing
}

// createTakeawayOrder opens a takeaway order with the given item payload.
func createTakeawayOrder(t *testing.T, orders *apiconnect.OrderServiceClient, items string) *models.Order {
	t.Helper()
	resp, err := orders.CreateOrder(context.Background(), connect.NewRequest(&api.CreateOrderRequest{
		Kind:  models.KindTakeaway,
		Items: []byte(items),
	}))
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return resp.Msg.Order
}

func getOrder(t *testing.T, orders *apiconnect.OrderServiceClient, orderID string) *models.Order {
	t.Helper()
	resp, err := orders.GetOrder(context.Background(), connect.NewRequest(&api.GetOrderRequest{OrderID: orderID}))
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	return resp.Msg.Order
}

func TestOrderMutation_ReappliesAfterConflict(t *testing.T) {
	const twoItems = `[
		{"name":"Soup","quantity":1,"unit_price":"8"},
		{"name":"Steak","quantity":1,"unit_price":"30"}
	]`
	ctx := context.Background()

	t.Run("keeps the rival's change", func(t *testing.T) {
		env, racing := setupRacingServer(t)
		orders, _ := env.clients(t, testVenue)
		order := createTakeawayOrder(t, orders, twoItems)
		soup, steak := order.Items[0].ID, order.Items[1].ID

		racing.raceOrders(1, func(o *models.Order) {
			o.Item(steak).Status = models.ItemPreparing
		})
		resp, err := orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
			OrderID: order.ID, ItemID: soup, Status: models.ItemPreparing,
		}))
		if err != nil {
			t.Fatalf("SetItemStatus failed: %v", err)
		}

		got := resp.Msg.Order
		if got.Item(soup).Status != models.ItemPreparing || got.Item(steak).Status != models.ItemPreparing {
			t.Errorf("expected both items preparing, got soup=%s steak=%s", got.Item(soup).Status, got.Item(steak).Status)
		}
		if got.Status != models.OrderPreparing {
			t.Errorf("status: expected preparing, got %s", got.Status)
		}
		if got.Version != order.Version+2 {
			t.Errorf("version: expected %d, got %d", order.Version+2, got.Version)
		}
		if n := racing.racesLeft(); n != 0 {
			t.Errorf("expected every race used, %d left", n)
		}
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		env, racing := setupRacingServer(t)
		orders, _ := env.clients(t, testVenue)
		order := createTakeawayOrder(t, orders, twoItems)
		soup := order.Items[0].ID

		racing.raceOrders(DefaultMaxConflictRetries+1, nil)
		_, err := orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
			OrderID: order.ID, ItemID: soup, Status: models.ItemPreparing,
		}))
		assertCode(t, err, connect.CodeAborted)

		stored := getOrder(t, orders, order.ID)
		if stored.Item(soup).Status != models.ItemPending {
			t.Errorf("expected soup untouched, got %s", stored.Item(soup).Status)
		}
		if want := order.Version + DefaultMaxConflictRetries + 1; stored.Version != want {
			t.Errorf("version: expected %d rival writes to land, at %d", want, stored.Version)
		}
	})

	t.Run("pinned version is not re-applied", func(t *testing.T) {
		env, racing := setupRacingServer(t)
		orders, _ := env.clients(t, testVenue)
		order := createTakeawayOrder(t, orders, twoItems)

		racing.raceOrders(2, nil)
		_, err := orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
			OrderID: order.ID, ItemID: order.Items[0].ID, Status: models.ItemPreparing,
			ExpectedVersion: order.Version,
		}))
		assertCode(t, err, connect.CodeAborted)
		if n := racing.racesLeft(); n != 1 {
			t.Errorf("expected a single write attempt, %d races left", n)
		}
	})
}

func TestTableMutation_ReappliesAfterConflict(t *testing.T) {
	env, racing := setupRacingServer(t)
	_, tables := env.clients(t, testVenue)
	table := createTable(t, tables, 7)
	ctx := context.Background()

	racing.raceTables(1, func(tb *models.Table) {
		tb.Section = "patio"
	})
	resp, err := tables.SeatTable(ctx, connect.NewRequest(&api.SeatTableRequest{
		TableID: table.ID, GuestCount: 3, CustomerName: "Ito",
	}))
	if err != nil {
		t.Fatalf("SeatTable failed: %v", err)
	}
	got := resp.Msg.Table
	if got.Section != "patio" {
		t.Errorf("section: expected the rival's patio, got %q", got.Section)
	}
	if got.CurrentGuests != 3 || got.Status != models.TableOccupied {
		t.Errorf("expected 3 guests and occupied, got %d %s", got.CurrentGuests, got.Status)
	}
	if got.Version != table.Version+2 {
		t.Errorf("version: expected %d, got %d", table.Version+2, got.Version)
	}

	racing.raceTables(DefaultMaxConflictRetries+1, nil)
	_, err = tables.ClearTable(ctx, connect.NewRequest(&api.ClearTableRequest{TableID: table.ID, Force: true}))
	assertCode(t, err, connect.CodeAborted)
}

func TestRecordPayment_SettleConflict(t *testing.T) {
	env, racing := setupRacingServer(t)
	orders, tables := env.clients(t, testVenue)
	createTable(t, tables, 4)
	order := createTastingOrder(t, orders, 4)
	ctx := context.Background()

	req := &api.RecordPaymentRequest{
		OrderID:        order.ID,
		Amount:         dec("972"),
		Method:         models.MethodCard,
		IdempotencyKey: "pay-settle",
	}

	racing.raceOrders(DefaultMaxConflictRetries+1, nil)
	_, err := orders.RecordPayment(ctx, connect.NewRequest(req))
	assertCode(t, err, connect.CodeAborted)
	if !strings.Contains(err.Error(), "recorded") {
		t.Errorf("expected the error to say the payment is recorded, got %v", err)
	}

	ledger, err := orders.ListPayments(ctx, connect.NewRequest(&api.ListPaymentsRequest{OrderID: order.ID}))
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	if len(ledger.Msg.Payments) != 1 {
		t.Fatalf("expected the entry to be durable, got %d entries", len(ledger.Msg.Payments))
	}

	resp, err := orders.RecordPayment(ctx, connect.NewRequest(req))
	if err != nil {
		t.Fatalf("retry with the same key failed: %v", err)
	}
	if !resp.Msg.Replayed {
		t.Error("expected the retry to be a replay")
	}
	if resp.Msg.Order.Status != models.OrderCompleted || resp.Msg.Order.PaymentStatus != models.PaymentPaid {
		t.Errorf("expected completed and paid, got %s / %s", resp.Msg.Order.Status, resp.Msg.Order.PaymentStatus)
	}
	assertDecimal(t, "amount paid", resp.Msg.Order.AmountPaid, "972")
}

func TestConcurrentItemStatus(t *testing.T) {
	env := setupTestServer(t)
	orders, _ := env.clients(t, testVenue)
	ctx := context.Background()

	const n = 10
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf(`{"name":"Dish %d","quantity":1,"unit_price":"5"}`, i)
	}
	order := createTakeawayOrder(t, orders, "["+strings.Join(lines, ",")+"]")

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
				OrderID: order.ID, ItemID: order.Items[i].ID, Status: models.ItemPreparing,
			}))
		}(i)
	}
	wg.Wait()

	stored := getOrder(t, orders, order.ID)
	var failed []int
	for i, err := range errs {
		item := stored.Item(order.Items[i].ID)
		if err == nil {
			if item.Status != models.ItemPreparing {
				t.Errorf("item %d: update acknowledged but lost, status %s", i, item.Status)
			}
			continue
		}
		assertCode(t, err, connect.CodeAborted)
		if item.Status != models.ItemPending {
			t.Errorf("item %d: failed update partly applied, status %s", i, item.Status)
		}
		failed = append(failed, i)
	}

	for _, i := range failed {
		if _, err := orders.SetItemStatus(ctx, connect.NewRequest(&api.SetItemStatusRequest{
			OrderID: order.ID, ItemID: order.Items[i].ID, Status: models.ItemPreparing,
		})); err != nil {
			t.Fatalf("item %d: retry failed: %v", i, err)
		}
	}
	stored = getOrder(t, orders, order.ID)
	for _, item := range stored.Items {
		if item.Status != models.ItemPreparing {
			t.Errorf("item %s: expected preparing, got %s", item.Name, item.Status)
		}
	}
	if stored.Status != models.OrderPreparing {
		t.Errorf("status: expected preparing, got %s", stored.Status)
	}
}

func TestConcurrentPayments(t *testing.T) {
	env := setupTestServer(t)
	orders, _ := env.clients(t, testVenue)
	ctx := context.Background()

	// 500 plus 8% tax is 540, paid in twelve shares of 45.
	order := createTakeawayOrder(t, orders, `[{"name":"Banquet","quantity":1,"unit_price":"500"}]`)
	assertDecimal(t, "total", order.Total, "540")

	const n = 12
	reqs := make([]*api.RecordPaymentRequest, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		reqs[i] = &api.RecordPaymentRequest{
			OrderID:        order.ID,
			Amount:         dec("45"),
			Method:         models.MethodCard,
			IdempotencyKey: fmt.Sprintf("share-%d", i),
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = orders.RecordPayment(ctx, connect.NewRequest(reqs[i]))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		assertCode(t, err, connect.CodeAborted)
		if _, err := orders.RecordPayment(ctx, connect.NewRequest(reqs[i])); err != nil {
			t.Fatalf("share %d: retry with the same key failed: %v", i, err)
		}
	}

	ledger, err := orders.ListPayments(ctx, connect.NewRequest(&api.ListPaymentsRequest{OrderID: order.ID}))
	if err != nil {
		t.Fatalf("ListPayments failed: %v", err)
	}
	if len(ledger.Msg.Payments) != n {
		t.Errorf("expected %d ledger entries, got %d", n, len(ledger.Msg.Payments))
	}
	assertDecimal(t, "ledger sum", ledger.Msg.AmountPaid, "540")

	stored := getOrder(t, orders, order.ID)
	assertDecimal(t, "amount paid", stored.AmountPaid, "540")
	if stored.PaymentStatus != models.PaymentPaid {
		t.Errorf("payment status: expected paid, got %s", stored.PaymentStatus)
	}
	if stored.Status != models.OrderCompleted {
		t.Errorf("status: expected completed, got %s", stored.Status)
	}
}
