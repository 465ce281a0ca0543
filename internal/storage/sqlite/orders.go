package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/internal/storage"
)

const orderColumns = `id, venue_id, table_number, kind, discount_type, discount_value, tax_rate,
	subtotal, discount_amount, tax, total, status, payment_status, version, created_at, updated_at`

// CreateOrder persists a new order and its items.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *models.Order) error {
	// Generate IDs if not set
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if order.CreatedAt == 0 {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.VenueID, nullInt(order.TableNumber), order.Kind,
		order.Discount.Type, order.Discount.Value, order.TaxRate,
		order.Subtotal, order.DiscountAmount, order.Tax, order.Total,
		order.Status, order.PaymentStatus, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to insert order: %w", err))
	}

	if err := upsertItems(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// GetOrder retrieves an order by ID, including items and ledger sum.
func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID))
	if err == sql.ErrNoRows {
		return nil, models.NotFound("order", orderID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get order: %w", err))
	}

	items, err := s.itemsFor(ctx, []string{orderID})
	if err != nil {
		return nil, err
	}
	order.Items = items[orderID]

	paid, err := s.paidFor(ctx, []string{orderID})
	if err != nil {
		return nil, err
	}
	order.AmountPaid = paid[orderID]

	return order, nil
}

// ListOrders retrieves the orders of a venue, oldest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, venueID string, filter storage.OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE venue_id = ?`
	args := []interface{}{venueID}
	if filter.ActiveOnly {
		query += ` AND status NOT IN (?, ?)`
		args = append(args, models.OrderCompleted, models.OrderCancelled)
	}
	if filter.TableNumber != nil {
		query += ` AND table_number = ?`
		args = append(args, *filter.TableNumber)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list orders: %w", err))
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	paid, err := s.paidFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
		o.AmountPaid = paid[o.ID]
	}
	return orders, nil
}

// UpdateOrder writes the order if its version is current.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET table_number = ?, kind = ?, discount_type = ?, discount_value = ?,
			subtotal = ?, discount_amount = ?, tax = ?, total = ?, status = ?, payment_status = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		nullInt(order.TableNumber), order.Kind, order.Discount.Type, order.Discount.Value,
		order.Subtotal, order.DiscountAmount, order.Tax, order.Total, order.Status, order.PaymentStatus,
		now, order.ID, order.Version,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to update order: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM orders WHERE id = ?", order.ID).Scan(&exists)
		if err == sql.ErrNoRows {
			return models.NotFound("order", order.ID)
		}
		if err != nil {
			return classify(fmt.Errorf("failed to check order existence: %w", err))
		}
		return fmt.Errorf("order %s at version %d: %w", order.ID, order.Version, models.ErrConflict)
	}

	if err := upsertItems(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	order.Version++
	order.UpdatedAt = now
	return nil
}

// upsertItems writes every item of the order. Items are never deleted, and
// the refunded flag can only go from 0 to 1.
func upsertItems(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		refunded := 0
		if item.Refunded {
			refunded = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, position, name, quantity, unit_price, notes, status, refunded, refund_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				quantity = excluded.quantity,
				unit_price = excluded.unit_price,
				notes = excluded.notes,
				status = excluded.status,
				refunded = MAX(order_items.refunded, excluded.refunded),
				refund_reason = COALESCE(order_items.refund_reason, excluded.refund_reason)`,
			item.ID, order.ID, i, item.Name, item.Quantity, item.UnitPrice, nullString(item.Notes),
			item.Status, refunded, nullString(item.RefundReason),
		)
		if err != nil {
			return classify(fmt.Errorf("failed to upsert item: %w", err))
		}
	}
	return nil
}

// itemsFor loads the items of the given orders keyed by order ID.
func (s *SQLiteStore) itemsFor(ctx context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, id, name, quantity, unit_price, notes, status, refunded, refund_reason
		 FROM order_items WHERE order_id IN (`+placeholders(len(orderIDs))+`)
		 ORDER BY order_id, position`,
		args...,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get items: %w", err))
	}
	defer rows.Close()

	items := make(map[string][]models.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID      string
			item         models.OrderItem
			notes        sql.NullString
			refunded     int
			refundReason sql.NullString
		)
		if err := rows.Scan(&orderID, &item.ID, &item.Name, &item.Quantity, &item.UnitPrice,
			&notes, &item.Status, &refunded, &refundReason); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Notes = notes.String
		item.Refunded = refunded != 0
		item.RefundReason = refundReason.String
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// paidFor sums the ledger of each given order. Amounts are summed as
// decimals here rather than with SQL SUM, which would go through REAL.
func (s *SQLiteStore) paidFor(ctx context.Context, orderIDs []string) (map[string]decimal.Decimal, error) {
	args := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, amount FROM payments WHERE order_id IN (`+placeholders(len(orderIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to sum payments: %w", err))
	}
	defer rows.Close()

	paid := make(map[string]decimal.Decimal, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			amount  decimal.Decimal
		)
		if err := rows.Scan(&orderID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		paid[orderID] = paid[orderID].Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return paid, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var tableNumber sql.NullInt64
	err := row.Scan(&order.ID, &order.VenueID, &tableNumber, &order.Kind,
		&order.Discount.Type, &order.Discount.Value, &order.TaxRate,
		&order.Subtotal, &order.DiscountAmount, &order.Tax, &order.Total,
		&order.Status, &order.PaymentStatus, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tableNumber.Valid {
		n := int(tableNumber.Int64)
		order.TableNumber = &n
	}
	return order, nil
}

// placeholders returns "?, ?, ..." with n placeholders.
// Used for building IN clauses with multiple placeholders.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
