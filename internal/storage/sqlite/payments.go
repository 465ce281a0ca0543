package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mmynk/tableside/internal/models"
)

// AppendPayment inserts a ledger entry unless one with the same ID exists.
func (s *SQLiteStore) AppendPayment(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	if payment.ID == "" {
		return nil, false, models.Invalid("payment_id", "idempotency key is required")
	}
	if payment.RecordedAt == 0 {
		payment.RecordedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	// A retried request must see its original entry, even if that entry
	// has since closed the order.
	existing, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT id, order_id, amount, method, tendered, terminal_id, recorded_at
		 FROM payments WHERE id = ?`, payment.ID))
	if err == nil {
		if existing.OrderID != payment.OrderID {
			return nil, false, models.Invalid("payment_id", "key %s already used for another order", payment.ID)
		}
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, classify(fmt.Errorf("failed to look up payment: %w", err))
	}

	var status models.OrderStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM orders WHERE id = ?", payment.OrderID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, false, models.NotFound("order", payment.OrderID)
	}
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to get order status: %w", err))
	}
	if status.Terminal() {
		return nil, false, models.Invalid("order_id", "order %s is %s", payment.OrderID, status)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, order_id, amount, method, tendered, terminal_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.OrderID, payment.Amount, payment.Method, payment.Tendered,
		nullString(payment.TerminalID), payment.RecordedAt,
	)
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to insert payment: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, false, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return payment, true, nil
}

// GetPayment retrieves a ledger entry by ID.
func (s *SQLiteStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx,
		`SELECT id, order_id, amount, method, tendered, terminal_id, recorded_at
		 FROM payments WHERE id = ?`, paymentID))
	if err == sql.ErrNoRows {
		return nil, models.NotFound("payment", paymentID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get payment: %w", err))
	}
	return payment, nil
}

// ListPayments retrieves the ledger of an order in recording order.
func (s *SQLiteStore) ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, amount, method, tendered, terminal_id, recorded_at
		 FROM payments WHERE order_id = ? ORDER BY recorded_at, rowid`,
		orderID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list payments: %w", err))
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	payment := &models.Payment{}
	var terminalID sql.NullString
	if err := row.Scan(&payment.ID, &payment.OrderID, &payment.Amount, &payment.Method,
		&payment.Tendered, &terminalID, &payment.RecordedAt); err != nil {
		return nil, err
	}
	payment.TerminalID = terminalID.String
	return payment, nil
}
