package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/tableside/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DefaultTaxRate is applied when a venue does not configure its own.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Totals holds the derived monetary fields of an order, rounded to whole
// currency units.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}

// ValidateDiscount checks a discount before it is applied.
func ValidateDiscount(d models.Discount) error {
	switch d.Type {
	case models.DiscountPercent:
		if d.Value.GreaterThan(hundred) {
			return models.Invalid("discount.value", "percent discount %s exceeds 100", d.Value)
		}
	case models.DiscountAmount:
	case "":
		if !d.Value.IsZero() {
			return models.Invalid("discount.type", "type is required")
		}
	default:
		return models.Invalid("discount.type", "unknown discount type %q", d.Type)
	}
	if d.Value.IsNegative() {
		return models.Invalid("discount.value", "discount %s is negative", d.Value)
	}
	return nil
}

// Subtotal sums unitPrice × quantity over items that are not refunded.
func Subtotal(items []models.OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		if item.Refunded {
			continue
		}
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// DiscountAmount returns the unrounded discount for subtotal, clamped to
// [0, subtotal].
func DiscountAmount(subtotal decimal.Decimal, d models.Discount) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case models.DiscountPercent:
		amount = subtotal.Mul(d.Value).Div(hundred)
	case models.DiscountAmount:
		amount = d.Value
	default:
		return decimal.Zero
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		return subtotal
	}
	return amount
}

// ComputeTotals derives subtotal, discount, tax and total for a set of items.
//
// Percent discount math is carried unrounded; each figure is rounded once.
// DiscountAmount is reported as subtotal minus the rounded discounted
// subtotal so that total = subtotal − discountAmount + tax holds exactly.
func ComputeTotals(items []models.OrderItem, d models.Discount, taxRate decimal.Decimal) Totals {
	raw := Subtotal(items)
	discounted := raw.Sub(DiscountAmount(raw, d))

	subtotal := raw.Round(0)
	discountedRounded := discounted.Round(0)
	if discountedRounded.GreaterThan(subtotal) {
		discountedRounded = subtotal
	}
	tax := discounted.Mul(taxRate).Round(0)

	total := discountedRounded.Add(tax)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: subtotal.Sub(discountedRounded),
		Tax:            tax,
		Total:          total,
	}
}

// ApplyTotals recomputes the derived money fields of o in place.
func ApplyTotals(o *models.Order) {
	t := ComputeTotals(o.Items, o.Discount, o.TaxRate)
	o.Subtotal = t.Subtotal
	o.DiscountAmount = t.DiscountAmount
	o.Tax = t.Tax
	o.Total = t.Total
}

// PaymentStatusFor derives the payment status from the ledger sum paid.
// An order is paid exactly when the ledger covers its total, so an order
// that totals zero is paid without any entry. Refunded marks a paid order
// whose every item was refunded after money was taken.
func PaymentStatusFor(o *models.Order, paid decimal.Decimal) models.PaymentStatus {
	if paid.GreaterThanOrEqual(o.Total) {
		if paid.IsPositive() && allRefunded(o.Items) {
			return models.PaymentRefunded
		}
		return models.PaymentPaid
	}
	if paid.IsPositive() {
		return models.PaymentPartiallyPaid
	}
	return models.PaymentPending
}

func allRefunded(items []models.OrderItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.Refunded {
			return false
		}
	}
	return true
}
