package models

import "github.com/shopspring/decimal"

// PaymentMethod is how a ledger entry was tendered.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodCard    PaymentMethod = "card"
	MethodWallet  PaymentMethod = "wallet"
	MethodVoucher PaymentMethod = "voucher"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodWallet, MethodVoucher:
		return true
	}
	return false
}

// Payment is one entry of an order's append-only ledger.
// The ledger, not a field on the order, is the source of truth for the
// amount paid.
type Payment struct {
	// ID is the client-supplied idempotency key.
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	Method  PaymentMethod   `json:"method"`

	// Tendered is the cash handed over, if recorded. Change is not captured
	// in the ledger.
	Tendered decimal.Decimal `json:"tendered"`

	TerminalID string `json:"terminal_id,omitempty"`
	RecordedAt int64  `json:"recorded_at"`
}
