package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/tableside/internal/models"
)

// Split describes an equal division of an amount between guests.
type Split struct {
	Count   int
	PerHead decimal.Decimal

	// Collected is PerHead × Count. It is never less than the amount split;
	// the excess is the price of never under-collecting.
	Collected decimal.Decimal
	Overage   decimal.Decimal
}

// ComputeSplit divides amount into count shares of ceil(amount / count).
// It does not touch any state; the caller records each share as a payment.
func ComputeSplit(amount decimal.Decimal, count int) (Split, error) {
	if count <= 0 {
		return Split{}, models.Invalid("split_count", "must be at least 1, got %d", count)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	n := decimal.NewFromInt(int64(count))
	perHead := amount.Div(n).Ceil()
	collected := perHead.Mul(n)

	return Split{
		Count:     count,
		PerHead:   perHead,
		Collected: collected,
		Overage:   collected.Sub(amount),
	}, nil
}

// ChangeDue is max(0, tendered − total). It only makes sense for cash.
func ChangeDue(tendered, total decimal.Decimal) decimal.Decimal {
	change := tendered.Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}
