// Package api defines the request and response messages of the Tableside
// RPC services. Messages are plain Go structs carried as JSON by Codec.
package api

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tableside/internal/models"
)

// Order service messages.

type CreateOrderRequest struct {
	TableNumber *int             `json:"table_number,omitempty"`
	Kind        models.OrderKind `json:"kind"`

	// Items may be an array, a single item object, or a JSON string
	// holding either.
	Items    json.RawMessage  `json:"items"`
	Discount *models.Discount `json:"discount,omitempty"`
}

// OrderResponse is returned by every order mutation.
type OrderResponse struct {
	Order *models.Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type ListOrdersRequest struct {
	ActiveOnly  bool `json:"active_only,omitempty"`
	TableNumber *int `json:"table_number,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*models.Order `json:"orders"`
}

// Mutations carry an optional ExpectedVersion. When set, the mutation fails
// with CodeAborted unless the stored order is at that version.

type AddItemsRequest struct {
	OrderID         string          `json:"order_id"`
	Items           json.RawMessage `json:"items"`
	ExpectedVersion int64           `json:"expected_version,omitempty"`
}

type SetItemStatusRequest struct {
	OrderID         string            `json:"order_id"`
	ItemID          string            `json:"item_id"`
	Status          models.ItemStatus `json:"status"`
	ExpectedVersion int64             `json:"expected_version,omitempty"`
}

type StartOrderRequest struct {
	OrderID         string `json:"order_id"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type CompleteOrderRequest struct {
	OrderID         string `json:"order_id"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type UpdateOrderStatusRequest struct {
	OrderID         string             `json:"order_id"`
	Status          models.OrderStatus `json:"status"`
	ExpectedVersion int64              `json:"expected_version,omitempty"`
}

type ApplyDiscountRequest struct {
	OrderID         string          `json:"order_id"`
	Discount        models.Discount `json:"discount"`
	ExpectedVersion int64           `json:"expected_version,omitempty"`
}

type RefundItemRequest struct {
	OrderID         string `json:"order_id"`
	ItemID          string `json:"item_id"`
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type RecordPaymentRequest struct {
	OrderID string               `json:"order_id"`
	Amount  decimal.Decimal      `json:"amount"`
	Method  models.PaymentMethod `json:"method"`

	// IdempotencyKey becomes the ledger entry ID. Retrying with the same
	// key returns the original outcome.
	IdempotencyKey string `json:"idempotency_key"`

	// Tendered is the cash handed over; zero if not recorded.
	Tendered decimal.Decimal `json:"tendered"`
}

type RecordPaymentResponse struct {
	Order   *models.Order   `json:"order"`
	Payment *models.Payment `json:"payment"`

	Remaining decimal.Decimal `json:"remaining"`
	Change    decimal.Decimal `json:"change"`

	// TableClearable is set when this payment settled a dine-in order.
	TableClearable bool `json:"table_clearable"`

	// Replayed is set when the key had already been recorded.
	Replayed bool `json:"replayed"`
}

type ListPaymentsRequest struct {
	OrderID string `json:"order_id"`
}

type ListPaymentsResponse struct {
	Payments   []*models.Payment `json:"payments"`
	AmountPaid decimal.Decimal   `json:"amount_paid"`
}

type ComputeSplitRequest struct {
	OrderID string `json:"order_id"`
	Count   int    `json:"count"`

	// OfRemaining splits what is still owed instead of the total.
	OfRemaining bool `json:"of_remaining,omitempty"`
}

type ComputeSplitResponse struct {
	Basis     decimal.Decimal `json:"basis"`
	Count     int             `json:"count"`
	PerHead   decimal.Decimal `json:"per_head"`
	Collected decimal.Decimal `json:"collected"`
	Overage   decimal.Decimal `json:"overage"`
}

// ChangeDueRequest computes change for a cash tender. When OrderID is set
// the order's remaining balance is used as Total.
type ChangeDueRequest struct {
	OrderID  string          `json:"order_id,omitempty"`
	Tendered decimal.Decimal `json:"tendered"`
	Total    decimal.Decimal `json:"total"`
}

type ChangeDueResponse struct {
	Change decimal.Decimal `json:"change"`
}

// Table service messages.

// Table is a table together with its derived display status.
type Table struct {
	models.Table
	Status       models.TableStatus `json:"status"`
	ActiveOrders int                `json:"active_orders"`
}

type CreateTableRequest struct {
	Number   int    `json:"number"`
	Capacity int    `json:"capacity"`
	Section  string `json:"section,omitempty"`
}

type TableResponse struct {
	Table *Table `json:"table"`
}

type GetTableRequest struct {
	TableID string `json:"table_id"`
}

type ListTablesRequest struct{}

type ListTablesResponse struct {
	Tables []*Table `json:"tables"`
}

type SeatTableRequest struct {
	TableID         string `json:"table_id"`
	GuestCount      int    `json:"guest_count"`
	CustomerName    string `json:"customer_name,omitempty"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

type ClearTableRequest struct {
	TableID string `json:"table_id"`

	// Force clears the table even while it has active orders.
	Force           bool  `json:"force,omitempty"`
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

type SetTableStatusRequest struct {
	TableID         string             `json:"table_id"`
	Status          models.TableStatus `json:"status"`
	CustomerName    string             `json:"customer_name,omitempty"`
	ExpectedVersion int64              `json:"expected_version,omitempty"`
}
