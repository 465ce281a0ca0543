// Package terminal is the client side of Tableside: a read cache fed by the
// change feed, an RPC client that retries transient failures, and the loop
// that keeps the two in step.
//
// A terminal never changes its cache on its own. Every mutation goes to the
// server through Client, and the cache only moves when the resulting event
// (or a later snapshot) arrives.
package terminal

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mmynk/tableside/internal/calculator"
	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/pkg/api"
)

// View is a venue's orders and tables as last received from the server.
// It is safe for concurrent use.
type View struct {
	venueID string

	mu     sync.RWMutex
	orders map[string]*models.Order
	tables map[string]*models.Table
}

// NewView creates an empty view for venueID.
func NewView(venueID string) *View {
	return &View{
		venueID: venueID,
		orders:  make(map[string]*models.Order),
		tables:  make(map[string]*models.Table),
	}
}

// Apply folds one feed event into the view. Events for other venues and
// revisions older than the cached one are ignored; it reports whether the
// view changed. Applying the same event twice is harmless.
func (v *View) Apply(ev feed.Event) (bool, error) {
	if ev.VenueID != v.venueID {
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Entity {
	case feed.EntityOrders:
		if ev.Op == feed.OpDelete {
			return deleteRecord(v.orders, ev.ID, ev.Version, orderVersion), nil
		}
		var order models.Order
		if err := json.Unmarshal(ev.Record, &order); err != nil {
			return false, fmt.Errorf("failed to decode order %s: %w", ev.ID, err)
		}
		return v.putOrderLocked(&order), nil
	case feed.EntityTables:
		if ev.Op == feed.OpDelete {
			return deleteRecord(v.tables, ev.ID, ev.Version, tableVersion), nil
		}
		var table models.Table
		if err := json.Unmarshal(ev.Record, &table); err != nil {
			return false, fmt.Errorf("failed to decode table %s: %w", ev.ID, err)
		}
		return v.putTableLocked(&table), nil
	}
	return false, fmt.Errorf("unknown feed entity %q", ev.Entity)
}

// Load merges a snapshot into the view under the same version rule as
// Apply, so events that raced ahead of the snapshot are kept.
func (v *View) Load(orders []*models.Order, tables []*models.Table) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, o := range orders {
		if o.VenueID == v.venueID {
			v.putOrderLocked(o.Clone())
		}
	}
	for _, t := range tables {
		if t.VenueID == v.venueID {
			c := *t
			v.putTableLocked(&c)
		}
	}
}

func (v *View) putOrderLocked(o *models.Order) bool {
	if cur, ok := v.orders[o.ID]; ok && o.Version < cur.Version {
		return false
	}
	v.orders[o.ID] = o
	return true
}

func (v *View) putTableLocked(t *models.Table) bool {
	if cur, ok := v.tables[t.ID]; ok && t.Version < cur.Version {
		return false
	}
	v.tables[t.ID] = t
	return true
}

func orderVersion(o *models.Order) int64 { return o.Version }
func tableVersion(t *models.Table) int64 { return t.Version }

// deleteRecord drops id unless the cache already holds a newer revision.
func deleteRecord[T any](m map[string]*T, id string, version int64, versionOf func(*T) int64) bool {
	cur, ok := m[id]
	if !ok || versionOf(cur) > version {
		return false
	}
	delete(m, id)
	return true
}

// Order returns a copy of the cached order.
func (v *View) Order(orderID string) (*models.Order, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	o, ok := v.orders[orderID]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Orders returns copies of the cached orders, oldest first.
func (v *View) Orders() []*models.Order {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ordersLocked()
}

func (v *View) ordersLocked() []*models.Order {
	orders := make([]*models.Order, 0, len(v.orders))
	for _, o := range v.orders {
		orders = append(orders, o.Clone())
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt != orders[j].CreatedAt {
			return orders[i].CreatedAt < orders[j].CreatedAt
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

// KitchenStatus is the status the order's items add up to.
func (v *View) KitchenStatus(orderID string) (models.OrderStatus, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	o, ok := v.orders[orderID]
	if !ok {
		return "", false
	}
	return calculator.AggregateStatus(o.Items), true
}

// Table returns the cached table with its status derived from the cached
// orders.
func (v *View) Table(tableID string) (*api.Table, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.tables[tableID]
	if !ok {
		return nil, false
	}
	return deriveTable(t, v.ordersLocked()), true
}

// Tables returns every cached table ordered by number.
func (v *View) Tables() []*api.Table {
	v.mu.RLock()
	defer v.mu.RUnlock()
	orders := v.ordersLocked()
	tables := make([]*api.Table, 0, len(v.tables))
	for _, t := range v.tables {
		tables = append(tables, deriveTable(t, orders))
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
	return tables
}

func deriveTable(t *models.Table, orders []*models.Order) *api.Table {
	active := calculator.ActiveOrdersFor(t, orders)
	return &api.Table{
		Table:        *t,
		Status:       calculator.DeriveTableStatus(t, active),
		ActiveOrders: len(active),
	}
}
