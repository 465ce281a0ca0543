package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mmynk/tableside/internal/models"
	"github.com/mmynk/tableside/internal/storage"
)

const orderColumns = `id, venue_id, table_number, kind, discount_type, discount_value, tax_rate,
	subtotal, discount_amount, tax, total, status, payment_status, version, created_at, updated_at`

// CreateOrder persists a new order and its items.
func (s *PostgresStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if order.CreatedAt == 0 {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order.Version = 1

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		order.ID, order.VenueID, order.TableNumber, order.Kind,
		order.Discount.Type, toNumeric(order.Discount.Value), toNumeric(order.TaxRate),
		toNumeric(order.Subtotal), toNumeric(order.DiscountAmount), toNumeric(order.Tax), toNumeric(order.Total),
		order.Status, order.PaymentStatus, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to insert order: %w", err))
	}

	if err := upsertItems(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// GetOrder retrieves an order by ID, including items and ledger sum.
func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := scanOrder(s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFound("order", orderID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get order: %w", err))
	}

	if err := s.attach(ctx, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders retrieves the orders of a venue, oldest first.
func (s *PostgresStore) ListOrders(ctx context.Context, venueID string, filter storage.OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE venue_id = $1`
	args := []any{venueID}
	if filter.ActiveOnly {
		args = append(args, []string{string(models.OrderCompleted), string(models.OrderCancelled)})
		query += fmt.Sprintf(` AND NOT (status = ANY($%d))`, len(args))
	}
	if filter.TableNumber != nil {
		args = append(args, *filter.TableNumber)
		query += fmt.Sprintf(` AND table_number = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
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
		return nil, classify(fmt.Errorf("failed to iterate orders: %w", err))
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	if err := s.attach(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder writes the order if its version is current.
func (s *PostgresStore) UpdateOrder(ctx context.Context, order *models.Order) error {
	now := time.Now().Unix()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET table_number = $1, kind = $2, discount_type = $3, discount_value = $4,
			subtotal = $5, discount_amount = $6, tax = $7, total = $8, status = $9, payment_status = $10,
			version = version + 1, updated_at = $11
		 WHERE id = $12 AND version = $13`,
		order.TableNumber, order.Kind, order.Discount.Type, toNumeric(order.Discount.Value),
		toNumeric(order.Subtotal), toNumeric(order.DiscountAmount), toNumeric(order.Tax), toNumeric(order.Total),
		order.Status, order.PaymentStatus, now, order.ID, order.Version,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to update order: %w", err))
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", order.ID).Scan(&exists)
		if err != nil {
			return classify(fmt.Errorf("failed to check order existence: %w", err))
		}
		if !exists {
			return models.NotFound("order", order.ID)
		}
		return fmt.Errorf("order %s at version %d: %w", order.ID, order.Version, models.ErrConflict)
	}

	if err := upsertItems(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}

	order.Version++
	order.UpdatedAt = now
	return nil
}

// upsertItems writes every item of the order in one batch. Items are never
// deleted, and the refunded flag can only be set.
func upsertItems(ctx context.Context, tx pgx.Tx, order *models.Order) error {
	batch := &pgx.Batch{}
	for i := range order.Items {
		item := &order.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		batch.Queue(
			`INSERT INTO order_items (id, order_id, position, name, quantity, unit_price, notes, status, refunded, refund_reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				quantity = EXCLUDED.quantity,
				unit_price = EXCLUDED.unit_price,
				notes = EXCLUDED.notes,
				status = EXCLUDED.status,
				refunded = order_items.refunded OR EXCLUDED.refunded,
				refund_reason = COALESCE(order_items.refund_reason, EXCLUDED.refund_reason)`,
			item.ID, order.ID, i, item.Name, item.Quantity, toNumeric(item.UnitPrice), nullString(item.Notes),
			item.Status, item.Refunded, nullString(item.RefundReason),
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return classify(fmt.Errorf("failed to upsert items: %w", err))
	}
	return nil
}

// attach loads items and ledger sums for the given orders.
func (s *PostgresStore) attach(ctx context.Context, orders []*models.Order) error {
	ids := make([]string, len(orders))
	byID := make(map[string]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := s.pool.Query(ctx,
		`SELECT order_id, id, name, quantity, unit_price, notes, status, refunded, refund_reason
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return classify(fmt.Errorf("failed to get items: %w", err))
	}
	for rows.Next() {
		var (
			orderID      string
			item         models.OrderItem
			unitPrice    pgtype.Numeric
			notes        *string
			refundReason *string
		)
		if err := rows.Scan(&orderID, &item.ID, &item.Name, &item.Quantity, &unitPrice,
			&notes, &item.Status, &item.Refunded, &refundReason); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan item: %w", err)
		}
		if item.UnitPrice, err = fromNumeric(unitPrice); err != nil {
			rows.Close()
			return fmt.Errorf("failed to convert unit price: %w", err)
		}
		if notes != nil {
			item.Notes = *notes
		}
		if refundReason != nil {
			item.RefundReason = *refundReason
		}
		o := byID[orderID]
		o.Items = append(o.Items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classify(fmt.Errorf("failed to iterate items: %w", err))
	}

	rows, err = s.pool.Query(ctx,
		`SELECT order_id, SUM(amount) FROM payments WHERE order_id = ANY($1) GROUP BY order_id`, ids)
	if err != nil {
		return classify(fmt.Errorf("failed to sum payments: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			sum     pgtype.Numeric
		)
		if err := rows.Scan(&orderID, &sum); err != nil {
			return fmt.Errorf("failed to scan payment sum: %w", err)
		}
		paid, err := fromNumeric(sum)
		if err != nil {
			return fmt.Errorf("failed to convert payment sum: %w", err)
		}
		byID[orderID].AmountPaid = paid
	}
	if err := rows.Err(); err != nil {
		return classify(fmt.Errorf("failed to iterate payment sums: %w", err))
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	var (
		tableNumber                                   *int32
		discountValue, taxRate, subtotal, discountAmt pgtype.Numeric
		tax, total                                    pgtype.Numeric
	)
	err := row.Scan(&order.ID, &order.VenueID, &tableNumber, &order.Kind,
		&order.Discount.Type, &discountValue, &taxRate,
		&subtotal, &discountAmt, &tax, &total,
		&order.Status, &order.PaymentStatus, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tableNumber != nil {
		n := int(*tableNumber)
		order.TableNumber = &n
	}
	err = numerics(
		&order.Discount.Value, &discountValue,
		&order.TaxRate, &taxRate,
		&order.Subtotal, &subtotal,
		&order.DiscountAmount, &discountAmt,
		&order.Tax, &tax,
		&order.Total, &total,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}
