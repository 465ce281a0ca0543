package calculator

import (
	"github.com/mmynk/tableside/internal/models"
)

// DeriveTableStatus computes what a terminal shows for a table. Occupancy is
// never stored: a table is occupied while any active order references it or
// guests are seated, whatever the operator-set status says.
func DeriveTableStatus(table *models.Table, activeOrders []*models.Order) models.TableStatus {
	if len(activeOrders) > 0 || table.CurrentGuests > 0 {
		return models.TableOccupied
	}
	switch table.ExplicitStatus {
	case models.TableReserved:
		return models.TableReserved
	case models.TableCleaning:
		return models.TableCleaning
	default:
		return models.TableAvailable
	}
}

// ActiveOrdersFor picks the orders that are neither completed nor cancelled
// and reference table.
func ActiveOrdersFor(table *models.Table, orders []*models.Order) []*models.Order {
	var active []*models.Order
	for _, o := range orders {
		if o.VenueID != table.VenueID || o.TableNumber == nil || *o.TableNumber != table.Number {
			continue
		}
		if o.Active() {
			active = append(active, o)
		}
	}
	return active
}
