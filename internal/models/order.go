package models

import (
	"github.com/shopspring/decimal"
)

// OrderKind describes how an order reaches the guest.
type OrderKind string

const (
	KindDineIn   OrderKind = "dine_in"
	KindTakeaway OrderKind = "takeaway"
	KindDelivery OrderKind = "delivery"
	KindQROrder  OrderKind = "qr_order"
)

// Valid reports whether k is a known order kind.
func (k OrderKind) Valid() bool {
	switch k {
	case KindDineIn, KindTakeaway, KindDelivery, KindQROrder:
		return true
	}
	return false
}

// OrderStatus is the order-level lifecycle state.
//
//	pending → confirmed → preparing → ready → served → completed
//	any non-terminal → cancelled
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderServed, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// PaymentStatus summarises the ledger against the order total.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentRefunded      PaymentStatus = "refunded"
)

// ItemStatus is the kitchen-side preparation stage of one order line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemServed    ItemStatus = "served"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemPreparing, ItemReady, ItemServed:
		return true
	}
	return false
}

// DiscountType selects how Discount.Value is interpreted.
type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountAmount  DiscountType = "amount"
)

// Discount is applied to the subtotal before tax. A zero Value means none.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Order is a single guest check or takeaway/delivery ticket.
//
// Subtotal, DiscountAmount, Tax, Total and AmountPaid are derived; they are
// recomputed by the service on every mutation and never authored by callers.
type Order struct {
	ID      string `json:"id"`
	VenueID string `json:"venue_id"`

	// TableNumber is nil for takeaway and delivery orders.
	TableNumber *int      `json:"table_number,omitempty"`
	Kind        OrderKind `json:"kind"`

	Items    []OrderItem `json:"items"`
	Discount Discount    `json:"discount"`

	// TaxRate is fixed when the order is created.
	TaxRate decimal.Decimal `json:"tax_rate"`

	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`

	// AmountPaid is the sum of the payment ledger for this order.
	AmountPaid decimal.Decimal `json:"amount_paid"`

	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	// Version is bumped by the store on every successful write.
	Version   int64 `json:"version"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Active reports whether the order still counts towards table occupancy.
func (o *Order) Active() bool {
	return !o.Status.Terminal()
}

// Remaining is the amount still owed on the order. Negative values mean
// the ledger holds more than the total.
func (o *Order) Remaining() decimal.Decimal {
	return o.Total.Sub(o.AmountPaid)
}

// Item returns the item with the given ID, or nil.
func (o *Order) Item(itemID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	if o.TableNumber != nil {
		n := *o.TableNumber
		c.TableNumber = &n
	}
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Notes     string          `json:"notes,omitempty"`

	Status ItemStatus `json:"status"`

	// Refunded is one-way: a refunded item is excluded from totals forever.
	Refunded     bool   `json:"refunded"`
	RefundReason string `json:"refund_reason,omitempty"`
}

// LineTotal is unitPrice × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
