package calculator

import (
	"testing"

	"github.com/mmynk/tableside/internal/models"
)

func itemsWith(statuses ...models.ItemStatus) []models.OrderItem {
	items := make([]models.OrderItem, len(statuses))
	for i, s := range statuses {
		items[i] = models.OrderItem{ID: string(rune('a' + i)), Quantity: 1, Status: s}
	}
	return items
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name  string
		items []models.OrderItem
		want  models.OrderStatus
	}{
		{"all ready", itemsWith(models.ItemReady, models.ItemReady), models.OrderReady},
		{"ready and preparing", itemsWith(models.ItemReady, models.ItemPreparing), models.OrderPreparing},
		{"no items", nil, models.OrderReady},
		{"single pending", itemsWith(models.ItemPending), models.OrderPending},
		{"pending keeps order out of ready", itemsWith(models.ItemReady, models.ItemPending), models.OrderPending},
		{"pending and preparing", itemsWith(models.ItemPending, models.ItemPreparing), models.OrderPreparing},
		{"all served", itemsWith(models.ItemServed, models.ItemServed), models.OrderServed},
		{"served and ready", itemsWith(models.ItemServed, models.ItemReady), models.OrderReady},
		{
			name: "refunded items are ignored",
			items: append(itemsWith(models.ItemReady), models.OrderItem{
				ID: "z", Quantity: 1, Status: models.ItemPending, Refunded: true,
			}),
			want: models.OrderReady,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.items); got != tt.want {
				t.Errorf("AggregateStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReconcileStatus(t *testing.T) {
	pending := itemsWith(models.ItemPending)
	if got := ReconcileStatus(models.OrderConfirmed, pending); got != models.OrderConfirmed {
		t.Errorf("confirmed order with pending items = %s, want confirmed", got)
	}
	if got := ReconcileStatus(models.OrderConfirmed, itemsWith(models.ItemPreparing)); got != models.OrderPreparing {
		t.Errorf("confirmed order with preparing item = %s, want preparing", got)
	}
	if got := ReconcileStatus(models.OrderCompleted, pending); got != models.OrderCompleted {
		t.Errorf("completed order changed to %s", got)
	}
	if got := ReconcileStatus(models.OrderReady, append(itemsWith(models.ItemReady), pending...)); got != models.OrderPending {
		t.Errorf("new pending item on ready order = %s, want pending", got)
	}
}

func TestCheckItemTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     models.ItemStatus
		to       models.ItemStatus
		refunded bool
		wantErr  bool
	}{
		{"pending to preparing", models.ItemPending, models.ItemPreparing, false, false},
		{"preparing to ready", models.ItemPreparing, models.ItemReady, false, false},
		{"ready to served", models.ItemReady, models.ItemServed, false, false},
		{"pending straight to ready", models.ItemPending, models.ItemReady, false, false},
		{"same status is a no-op", models.ItemReady, models.ItemReady, false, false},
		{"ready back to preparing", models.ItemReady, models.ItemPreparing, false, true},
		{"served back to pending", models.ItemServed, models.ItemPending, false, true},
		{"refunded item", models.ItemPending, models.ItemPreparing, true, true},
		{"unknown status", models.ItemPending, "burnt", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &models.OrderItem{ID: "x", Status: tt.from, Refunded: tt.refunded}
			err := CheckItemTransition(it, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckItemTransition(%s -> %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestCheckOrderTransition(t *testing.T) {
	tests := []struct {
		from, to models.OrderStatus
		wantErr  bool
	}{
		{models.OrderPending, models.OrderConfirmed, false},
		{models.OrderReady, models.OrderServed, false},
		{models.OrderPreparing, models.OrderCancelled, false},
		{models.OrderServed, models.OrderCancelled, false},
		{models.OrderPending, models.OrderServed, true},
		{models.OrderServed, models.OrderReady, true},
		{models.OrderServed, models.OrderCompleted, true},
		{models.OrderCompleted, models.OrderCancelled, true},
		{models.OrderCancelled, models.OrderPending, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := CheckOrderTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
