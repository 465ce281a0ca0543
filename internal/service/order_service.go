package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/tableside/internal/calculator"
	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/metrics"
	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/internal/storage"
	"github.com/mmynk/tableside/pkg/api"
	"github.com/mmynk/tableside/pkg/api/apiconnect"
)

var _ apiconnect.OrderServiceHandler = (*OrderService)(nil)

// OrderService implements the Connect OrderService.
type OrderService struct {
	base
}

// NewOrderService creates a new OrderService with the given storage backend
// and change feed.
func NewOrderService(store storage.Store, pub feed.Publisher, opts Options) *OrderService {
	return &OrderService{base{store: store, feed: pub, opts: opts}}
}

// loadOrder reads an order and hides orders of other venues.
func (s *OrderService) loadOrder(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, models.Invalid("order_id", "required")
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.VenueID != actor.VenueID {
		return nil, models.NotFound("order", orderID)
	}
	return order, nil
}

// mutation applies a change to a freshly read order. It reports false when
// the order already reflects the change and nothing needs writing.
type mutation func(o *models.Order) (bool, error)

// mutateOrder runs fn against the stored order, recomputes derived fields
// and writes the result, re-reading and re-applying on conflict.
func (s *OrderService) mutateOrder(ctx context.Context, actor models.Actor, orderID string, expectedVersion int64, fn mutation) (*models.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.loadOrder(ctx, actor, orderID)
		if err != nil {
			return nil, err
		}
		if expectedVersion != 0 && order.Version != expectedVersion {
			return nil, fmt.Errorf("order %s is at version %d, not %d: %w", orderID, order.Version, expectedVersion, models.ErrConflict)
		}

		before := order.Status
		changed, err := fn(order)
		if err != nil {
			return nil, err
		}
		if !changed {
			return order, nil
		}
		calculator.ApplyTotals(order)
		order.PaymentStatus = paymentStatus(order)

		err = s.store.UpdateOrder(ctx, order)
		if s.shouldRetry(err, expectedVersion, attempt) {
			metrics.ConflictRetries.Inc()
			slog.Info("Order changed concurrently, re-applying", "order_id", orderID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.publishOrder(ctx, feed.OpUpdate, order)
		if order.Status != before {
			metrics.OrderTransitions.WithLabelValues(string(order.Status)).Inc()
			if order.Status.Terminal() {
				s.signalTable(ctx, order)
			}
		}
		return order, nil
	}
}

// paymentStatus derives the payment status from the ledger sum loaded with
// the order.
func paymentStatus(o *models.Order) models.PaymentStatus {
	return calculator.PaymentStatusFor(o, o.AmountPaid)
}

// reconcile folds the item aggregate into the order status.
func reconcile(o *models.Order) {
	o.Status = calculator.ReconcileStatus(o.Status, o.Items)
}

// decodeNewItems normalizes an item payload and validates each line.
func decodeNewItems(raw json.RawMessage) ([]models.OrderItem, error) {
	items, err := models.DecodeItems(raw)
	if err != nil {
		return nil, err
	}
	for i := range items {
		item := &items[i]
		if item.Name == "" {
			return nil, models.Invalid(fmt.Sprintf("items[%d].name", i), "required")
		}
		if item.Quantity <= 0 {
			return nil, models.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive, got %d", item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return nil, models.Invalid(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		// New lines always start in the kitchen queue.
		item.ID = ""
		item.Status = models.ItemPending
		item.Refunded = false
		item.RefundReason = ""
	}
	return items, nil
}

// CreateOrder opens a new order in pending.
func (s *OrderService) CreateOrder(ctx context.Context, req *connect.Request[api.CreateOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateOrder request received",
		"venue_id", actor.VenueID,
		"kind", req.Msg.Kind,
		"table_number", req.Msg.TableNumber,
	)

	kind := req.Msg.Kind
	if kind == "" {
		kind = models.KindDineIn
	}
	if !kind.Valid() {
		return nil, connectError(models.Invalid("kind", "unknown order kind %q", kind))
	}

	switch kind {
	case models.KindDineIn, models.KindQROrder:
		if req.Msg.TableNumber == nil {
			return nil, connectError(models.Invalid("table_number", "required for %s orders", kind))
		}
		if _, err := s.tableByNumber(ctx, actor.VenueID, *req.Msg.TableNumber); err != nil {
			return nil, connectError(err)
		}
	default:
		if req.Msg.TableNumber != nil {
			return nil, connectError(models.Invalid("table_number", "not allowed for %s orders", kind))
		}
	}

	items, err := decodeNewItems(req.Msg.Items)
	if err != nil {
		return nil, connectError(err)
	}

	order := &models.Order{
		VenueID:       actor.VenueID,
		TableNumber:   req.Msg.TableNumber,
		Kind:          kind,
		Items:         items,
		TaxRate:       s.opts.taxRate(),
		Status:        models.OrderPending,
	}
	if req.Msg.Discount != nil {
		if err := calculator.ValidateDiscount(*req.Msg.Discount); err != nil {
			return nil, connectError(err)
		}
		order.Discount = *req.Msg.Discount
	}
	calculator.ApplyTotals(order)
	order.PaymentStatus = paymentStatus(order)

	if err := s.store.CreateOrder(ctx, order); err != nil {
		slog.Error("CreateOrder failed", "error", err)
		return nil, connectError(err)
	}

	slog.Info("Order created", "order_id", order.ID, "total", order.Total)
	metrics.OrderTransitions.WithLabelValues(string(order.Status)).Inc()
	s.publishOrder(ctx, feed.OpInsert, order)
	s.signalTable(ctx, order)

	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// GetOrder retrieves an order of the caller's venue.
func (s *OrderService) GetOrder(ctx context.Context, req *connect.Request[api.GetOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, actor, req.Msg.OrderID)
	if err != nil {
		slog.Error("GetOrder failed", "order_id", req.Msg.OrderID, "error", err)
		return nil, connectError(err)
	}
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// ListOrders retrieves the caller's venue orders, oldest first.
func (s *OrderService) ListOrders(ctx context.Context, req *connect.Request[api.ListOrdersRequest]) (*connect.Response[api.ListOrdersResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrders(ctx, actor.VenueID, storage.OrderFilter{
		ActiveOnly:  req.Msg.ActiveOnly,
		TableNumber: req.Msg.TableNumber,
	})
	if err != nil {
		slog.Error("ListOrders failed", "venue_id", actor.VenueID, "error", err)
		return nil, connectError(err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	slog.Info("ListOrders successful", "venue_id", actor.VenueID, "count", len(orders))
	return connect.NewResponse(&api.ListOrdersResponse{Orders: orders}), nil
}

// AddItems appends new pending lines to an open order.
func (s *OrderService) AddItems(ctx context.Context, req *connect.Request[api.AddItemsRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	items, err := decodeNewItems(req.Msg.Items)
	if err != nil {
		return nil, connectError(err)
	}
	if len(items) == 0 {
		return nil, connectError(models.Invalid("items", "at least one item is required"))
	}

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		if err := calculator.CheckMutable(o); err != nil {
			return false, err
		}
		o.Items = append(o.Items, items...)
		reconcile(o)
		return true, nil
	})
	if err != nil {
		slog.Error("AddItems failed", "order_id", req.Msg.OrderID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Items added", "order_id", order.ID, "count", len(items), "status", order.Status)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// SetItemStatus moves one item forward in the kitchen.
func (s *OrderService) SetItemStatus(ctx context.Context, req *connect.Request[api.SetItemStatusRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		if err := calculator.CheckMutable(o); err != nil {
			return false, err
		}
		item := o.Item(req.Msg.ItemID)
		if item == nil {
			return false, models.NotFound("item", req.Msg.ItemID)
		}
		if err := calculator.CheckItemTransition(item, req.Msg.Status); err != nil {
			return false, err
		}
		if item.Status == req.Msg.Status {
			return false, nil
		}
		item.Status = req.Msg.Status
		reconcile(o)
		return true, nil
	})
	if err != nil {
		slog.Error("SetItemStatus failed", "order_id", req.Msg.OrderID, "item_id", req.Msg.ItemID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Item status set", "order_id", order.ID, "item_id", req.Msg.ItemID, "item_status", req.Msg.Status, "status", order.Status)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// bulkItems moves every non-refunded item for which pick returns true to
// status.
func bulkItems(o *models.Order, status models.ItemStatus, pick func(models.OrderItem) bool) (bool, error) {
	if err := calculator.CheckMutable(o); err != nil {
		return false, err
	}
	changed := false
	for i := range o.Items {
		item := &o.Items[i]
		if item.Refunded || item.Status == status || !pick(*item) {
			continue
		}
		if err := calculator.CheckItemTransition(item, status); err != nil {
			return false, err
		}
		item.Status = status
		changed = true
	}
	if changed {
		reconcile(o)
	}
	return changed, nil
}

// StartOrder moves every pending item to preparing.
func (s *OrderService) StartOrder(ctx context.Context, req *connect.Request[api.StartOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		return bulkItems(o, models.ItemPreparing, func(item models.OrderItem) bool {
			return item.Status == models.ItemPending
		})
	})
	if err != nil {
		slog.Error("StartOrder failed", "order_id", req.Msg.OrderID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Order started", "order_id", order.ID, "status", order.Status)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// CompleteOrder marks every non-refunded item ready. Served items stay
// served.
func (s *OrderService) CompleteOrder(ctx context.Context, req *connect.Request[api.CompleteOrderRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		return bulkItems(o, models.ItemReady, func(item models.OrderItem) bool {
			return item.Status != models.ItemServed
		})
	})
	if err != nil {
		slog.Error("CompleteOrder failed", "order_id", req.Msg.OrderID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Order ready", "order_id", order.ID, "status", order.Status)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// UpdateOrderStatus applies an explicit order-level transition.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *connect.Request[api.UpdateOrderStatusRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	next := req.Msg.Status

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		if o.Status == next {
			return false, nil
		}
		if next == models.OrderCompleted {
			// Completion belongs to the ledger; it can only be forced here
			// once payments already cover the total.
			if err := calculator.CheckMutable(o); err != nil {
				return false, err
			}
			if o.Remaining().IsPositive() {
				return false, models.Invalid("status", "order has %s outstanding", o.Remaining())
			}
			o.Status = next
			return true, nil
		}
		if err := calculator.CheckOrderTransition(o.Status, next); err != nil {
			return false, err
		}
		if next == models.OrderServed {
			for i := range o.Items {
				if !o.Items[i].Refunded && o.Items[i].Status == models.ItemReady {
					o.Items[i].Status = models.ItemServed
				}
			}
		}
		o.Status = next
		return true, nil
	})
	if err != nil {
		slog.Error("UpdateOrderStatus failed", "order_id", req.Msg.OrderID, "status", next, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Order status updated", "order_id", order.ID, "status", order.Status)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// ApplyDiscount replaces the order discount and recomputes totals.
func (s *OrderService) ApplyDiscount(ctx context.Context, req *connect.Request[api.ApplyDiscountRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := calculator.ValidateDiscount(req.Msg.Discount); err != nil {
		return nil, connectError(err)
	}

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		if err := calculator.CheckMutable(o); err != nil {
			return false, err
		}
		o.Discount = req.Msg.Discount
		return true, nil
	})
	if err != nil {
		slog.Error("ApplyDiscount failed", "order_id", req.Msg.OrderID, "error", err)
		return nil, connectError(err)
	}

	slog.Info("Discount applied", "order_id", order.ID, "discount_amount", order.DiscountAmount, "total", order.Total)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// RefundItem removes an item from the totals. The ledger is not touched.
func (s *OrderService) RefundItem(ctx context.Context, req *connect.Request[api.RefundItemRequest]) (*connect.Response[api.OrderResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.mutateOrder(ctx, actor, req.Msg.OrderID, req.Msg.ExpectedVersion, func(o *models.Order) (bool, error) {
		if err := calculator.CheckMutable(o); err != nil {
			return false, err
		}
		item := o.Item(req.Msg.ItemID)
		if item == nil {
			return false, models.NotFound("item", req.Msg.ItemID)
		}
		if item.Refunded {
			return false, models.Invalid("item_id", "item %s is already refunded", item.ID)
		}
		item.Refunded = true
		item.RefundReason = req.Msg.Reason
		reconcile(o)
		return true, nil
	})
	if err != nil {
		slog.Error("RefundItem failed", "order_id", req.Msg.OrderID, "item_id", req.Msg.ItemID, "error", err)
		return nil, connectError(err)
	}

	if order.AmountPaid.IsPositive() {
		slog.Warn("Item refunded after payment; ledger left for manual reconciliation",
			"order_id", order.ID,
			"item_id", req.Msg.ItemID,
			"amount_paid", order.AmountPaid,
			"total", order.Total,
		)
	}
	slog.Info("Item refunded", "order_id", order.ID, "item_id", req.Msg.ItemID, "total", order.Total)
	return connect.NewResponse(&api.OrderResponse{Order: order}), nil
}

// RecordPayment appends a ledger entry and settles the order once the
// ledger covers its total.
func (s *OrderService) RecordPayment(ctx context.Context, req *connect.Request[api.RecordPaymentRequest]) (*connect.Response[api.RecordPaymentResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	msg := req.Msg
	slog.Info("RecordPayment request received",
		"order_id", msg.OrderID,
		"amount", msg.Amount,
		"method", msg.Method,
		"idempotency_key", msg.IdempotencyKey,
	)

	if msg.IdempotencyKey == "" {
		return nil, connectError(models.Invalid("idempotency_key", "required"))
	}

	// A retried key returns the original outcome, even if the order has
	// since been completed.
	if existing, err := s.store.GetPayment(ctx, msg.IdempotencyKey); err == nil {
		return s.replayPayment(ctx, actor, msg, existing)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, connectError(err)
	}

	if err := validatePayment(msg); err != nil {
		return nil, connectError(err)
	}

	order, err := s.loadOrder(ctx, actor, msg.OrderID)
	if err != nil {
		return nil, connectError(err)
	}
	if err := calculator.CheckMutable(order); err != nil {
		return nil, connectError(err)
	}
	payment, created, err := s.store.AppendPayment(ctx, &models.Payment{
		ID:         msg.IdempotencyKey,
		OrderID:    order.ID,
		Amount:     msg.Amount,
		Method:     msg.Method,
		Tendered:   msg.Tendered,
		TerminalID: actor.TerminalID,
	})
	if err != nil {
		slog.Error("AppendPayment failed", "order_id", order.ID, "error", err)
		return nil, connectError(err)
	}
	if !created {
		return s.replayPayment(ctx, actor, msg, payment)
	}
	metrics.Payments.WithLabelValues(string(payment.Method)).Inc()
	metrics.PaymentAmount.WithLabelValues(string(payment.Method)).Add(payment.Amount.InexactFloat64())

	order, err = s.settle(ctx, actor, order.ID)
	if err != nil {
		// The entry is durable; a retry with the same key will settle.
		slog.Error("Failed to settle order after payment", "order_id", msg.OrderID, "idempotency_key", payment.ID, "error", err)
		return nil, connectError(fmt.Errorf("payment %s is recorded but order %s was not settled, retry with the same key: %w", payment.ID, msg.OrderID, err))
	}

	resp := paymentResponse(order, payment)
	slog.Info("Payment recorded",
		"order_id", order.ID,
		"amount", payment.Amount,
		"remaining", resp.Remaining,
		"payment_status", order.PaymentStatus,
		"status", order.Status,
	)
	return connect.NewResponse(resp), nil
}

// replayPayment answers a request whose key is already in the ledger.
func (s *OrderService) replayPayment(ctx context.Context, actor models.Actor, msg *api.RecordPaymentRequest, payment *models.Payment) (*connect.Response[api.RecordPaymentResponse], error) {
	if payment.OrderID != msg.OrderID {
		return nil, connectError(models.Invalid("idempotency_key", "key %s already used for another order", payment.ID))
	}
	// Settle again in case the original request failed after appending.
	order, err := s.settle(ctx, actor, payment.OrderID)
	if err != nil {
		return nil, connectError(err)
	}
	slog.Info("Payment replayed", "order_id", order.ID, "idempotency_key", payment.ID)
	resp := paymentResponse(order, payment)
	resp.Replayed = true
	return connect.NewResponse(resp), nil
}

// settle folds the ledger into the order's payment status and completes the
// order once nothing remains.
func (s *OrderService) settle(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	return s.mutateOrder(ctx, actor, orderID, 0, func(o *models.Order) (bool, error) {
		if o.Status.Terminal() {
			return false, nil
		}
		status := paymentStatus(o)
		settled := !o.Remaining().IsPositive() && o.AmountPaid.IsPositive()
		if status == o.PaymentStatus && !settled {
			return false, nil
		}
		if settled {
			o.Status = models.OrderCompleted
		}
		return true, nil
	})
}

func paymentResponse(order *models.Order, payment *models.Payment) *api.RecordPaymentResponse {
	remaining := order.Remaining()
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	resp := &api.RecordPaymentResponse{
		Order:          order,
		Payment:        payment,
		Remaining:      remaining,
		TableClearable: order.Status == models.OrderCompleted && order.TableNumber != nil,
	}
	if payment.Method == models.MethodCash && payment.Tendered.IsPositive() {
		resp.Change = calculator.ChangeDue(payment.Tendered, payment.Amount)
	}
	return resp
}

func validatePayment(msg *api.RecordPaymentRequest) error {
	if !msg.Amount.IsPositive() {
		return models.Invalid("amount", "must be positive, got %s", msg.Amount)
	}
	if !msg.Method.Valid() {
		return models.Invalid("method", "unknown payment method %q", msg.Method)
	}
	if msg.Tendered.IsNegative() {
		return models.Invalid("tendered", "must not be negative")
	}
	if !msg.Tendered.IsZero() {
		if msg.Method != models.MethodCash {
			return models.Invalid("tendered", "only recorded for cash payments")
		}
		if msg.Tendered.LessThan(msg.Amount) {
			return models.Invalid("tendered", "%s is less than the amount %s", msg.Tendered, msg.Amount)
		}
	}
	return nil
}

// ListPayments returns an order's ledger.
func (s *OrderService) ListPayments(ctx context.Context, req *connect.Request[api.ListPaymentsRequest]) (*connect.Response[api.ListPaymentsResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, actor, req.Msg.OrderID)
	if err != nil {
		return nil, connectError(err)
	}
	payments, err := s.store.ListPayments(ctx, order.ID)
	if err != nil {
		slog.Error("ListPayments failed", "order_id", order.ID, "error", err)
		return nil, connectError(err)
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	return connect.NewResponse(&api.ListPaymentsResponse{
		Payments:   payments,
		AmountPaid: order.AmountPaid,
	}), nil
}

// ComputeSplit divides the total, or what remains of it, into equal shares.
// Nothing is written.
func (s *OrderService) ComputeSplit(ctx context.Context, req *connect.Request[api.ComputeSplitRequest]) (*connect.Response[api.ComputeSplitResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, actor, req.Msg.OrderID)
	if err != nil {
		return nil, connectError(err)
	}

	basis := order.Total
	if req.Msg.OfRemaining {
		basis = order.Remaining()
	}
	split, err := calculator.ComputeSplit(basis, req.Msg.Count)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.ComputeSplitResponse{
		Basis:     basis,
		Count:     split.Count,
		PerHead:   split.PerHead,
		Collected: split.Collected,
		Overage:   split.Overage,
	}), nil
}

// ChangeDue computes the change for a cash tender.
func (s *OrderService) ChangeDue(ctx context.Context, req *connect.Request[api.ChangeDueRequest]) (*connect.Response[api.ChangeDueResponse], error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.Tendered.IsNegative() {
		return nil, connectError(models.Invalid("tendered", "must not be negative"))
	}

	total := req.Msg.Total
	if req.Msg.OrderID != "" {
		order, err := s.loadOrder(ctx, actor, req.Msg.OrderID)
		if err != nil {
			return nil, connectError(err)
		}
		total = order.Remaining()
	}

	return connect.NewResponse(&api.ChangeDueResponse{
		Change: calculator.ChangeDue(req.Msg.Tendered, total),
	}), nil
}
