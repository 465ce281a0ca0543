// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/tableside/internal/models"
)

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	// ActiveOnly drops completed and cancelled orders.
	ActiveOnly bool

	// TableNumber, when set, keeps only orders for that table.
	TableNumber *int
}

// Store defines the interface for order, ledger and table persistence.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the service layer.
//
// Orders and tables are versioned. Update methods write only if the stored
// version equals the version on the record passed in, and bump it on
// success; otherwise they return models.ErrConflict. Missing records yield
// models.ErrNotFound and transient backend failures models.ErrUnavailable.
type Store interface {
	// CreateOrder persists a new order with its items.
	// ID, item IDs, Version and timestamps are populated by the store.
	CreateOrder(ctx context.Context, order *models.Order) error

	// GetOrder retrieves an order with its items and ledger sum.
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)

	// ListOrders retrieves the orders of a venue, oldest first.
	ListOrders(ctx context.Context, venueID string, filter OrderFilter) ([]*models.Order, error)

	// UpdateOrder replaces the order row and its items.
	UpdateOrder(ctx context.Context, order *models.Order) error

	// AppendPayment inserts a ledger entry keyed by payment.ID. If an entry
	// with that ID already exists it is returned with created == false and
	// nothing is written. Appending to a completed or cancelled order fails
	// with models.ErrValidation.
	AppendPayment(ctx context.Context, payment *models.Payment) (stored *models.Payment, created bool, err error)

	// GetPayment retrieves a ledger entry by its idempotency key.
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)

	// ListPayments retrieves the ledger of an order in recording order.
	ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error)

	// CreateTable persists a new table.
	CreateTable(ctx context.Context, table *models.Table) error

	// GetTable retrieves a table by ID.
	GetTable(ctx context.Context, tableID string) (*models.Table, error)

	// ListTables retrieves the tables of a venue ordered by number.
	ListTables(ctx context.Context, venueID string) ([]*models.Table, error)

	// UpdateTable writes the mutable fields of a table.
	UpdateTable(ctx context.Context, table *models.Table) error

	// Close releases any resources held by the store.
	Close() error
}
