package calculator

import (
	"github.com/mmynk/tableside/internal/models"
)

var itemRank = map[models.ItemStatus]int{
	models.ItemPending:   0,
	models.ItemPreparing: 1,
	models.ItemReady:     2,
	models.ItemServed:    3,
}

// CheckItemTransition validates moving an item from one status to another.
// Items only move forward; re-applying the current status is allowed so that
// retried requests are harmless.
func CheckItemTransition(item *models.OrderItem, next models.ItemStatus) error {
	if !next.Valid() {
		return models.Invalid("status", "unknown item status %q", next)
	}
	if item.Refunded {
		return models.Invalid("item_id", "item %s is refunded", item.ID)
	}
	if itemRank[next] < itemRank[item.Status] {
		return models.Invalid("status", "item %s cannot move back from %s to %s", item.ID, item.Status, next)
	}
	return nil
}

// AggregateStatus derives the kitchen status of an order from its
// non-refunded items:
//   - every item served → served
//   - every item ready or served (or no items) → ready
//   - any item preparing → preparing
//   - otherwise → pending
func AggregateStatus(items []models.OrderItem) models.OrderStatus {
	relevant, ready, served, preparing := 0, 0, 0, 0
	for _, item := range items {
		if item.Refunded {
			continue
		}
		relevant++
		switch item.Status {
		case models.ItemServed:
			served++
			ready++
		case models.ItemReady:
			ready++
		case models.ItemPreparing:
			preparing++
		}
	}

	switch {
	case relevant > 0 && served == relevant:
		return models.OrderServed
	case ready == relevant:
		return models.OrderReady
	case preparing > 0:
		return models.OrderPreparing
	default:
		return models.OrderPending
	}
}

// ReconcileStatus folds the item aggregate into the current order status.
// Terminal orders never change, and a confirmed order stays confirmed until
// the kitchen starts on it.
func ReconcileStatus(current models.OrderStatus, items []models.OrderItem) models.OrderStatus {
	if current.Terminal() {
		return current
	}
	agg := AggregateStatus(items)
	if agg == models.OrderPending && current == models.OrderConfirmed {
		return current
	}
	return agg
}

// allowedTransitions lists explicit order-level moves. Kitchen moves between
// pending, preparing, ready and served happen through item aggregation, and
// completion happens through the ledger.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:   {models.OrderConfirmed, models.OrderCancelled},
	models.OrderConfirmed: {models.OrderCancelled},
	models.OrderPreparing: {models.OrderCancelled},
	models.OrderReady:     {models.OrderServed, models.OrderCancelled},
	models.OrderServed:    {models.OrderCancelled},
}

// CheckOrderTransition validates an explicit order status change.
func CheckOrderTransition(current, next models.OrderStatus) error {
	if !next.Valid() {
		return models.Invalid("status", "unknown order status %q", next)
	}
	if current.Terminal() {
		return models.Invalid("status", "order is %s", current)
	}
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return models.Invalid("status", "cannot transition from %s to %s", current, next)
}

// CheckMutable rejects changes to completed or cancelled orders.
func CheckMutable(o *models.Order) error {
	if o.Status.Terminal() {
		return models.Invalid("order_id", "order %s is %s", o.ID, o.Status)
	}
	return nil
}
