package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mmynk/tableside/internal/models"
)

const paymentColumns = `id, order_id, amount, method, tendered, terminal_id, recorded_at`

// AppendPayment inserts a ledger entry unless one with the same ID exists.
// The order row is locked for the duration so the status check and the
// insert see the same order.
func (s *PostgresStore) AppendPayment(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	if payment.ID == "" {
		return nil, false, models.Invalid("payment_id", "idempotency key is required")
	}
	if payment.RecordedAt == 0 {
		payment.RecordedAt = time.Now().Unix()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if existing, err := existingPayment(ctx, tx, payment); existing != nil || err != nil {
		return existing, false, err
	}

	var status models.OrderStatus
	err = tx.QueryRow(ctx, "SELECT status FROM orders WHERE id = $1 FOR UPDATE", payment.OrderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, models.NotFound("order", payment.OrderID)
	}
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to lock order: %w", err))
	}
	if status.Terminal() {
		return nil, false, models.Invalid("order_id", "order %s is %s", payment.OrderID, status)
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		payment.ID, payment.OrderID, toNumeric(payment.Amount), payment.Method, toNumeric(payment.Tendered),
		nullString(payment.TerminalID), payment.RecordedAt,
	)
	if err != nil {
		return nil, false, classify(fmt.Errorf("failed to insert payment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		// A concurrent request with the same key won the insert.
		existing, err := existingPayment(ctx, tx, payment)
		if err == nil && existing == nil {
			err = fmt.Errorf("payment %s vanished after conflict: %w", payment.ID, models.ErrConflict)
		}
		return existing, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return payment, true, nil
}

// existingPayment returns the stored entry for payment.ID, or nil if there
// is none.
func existingPayment(ctx context.Context, tx pgx.Tx, payment *models.Payment) (*models.Payment, error) {
	existing, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, payment.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to look up payment: %w", err))
	}
	if existing.OrderID != payment.OrderID {
		return nil, models.Invalid("payment_id", "key %s already used for another order", payment.ID)
	}
	return existing, nil
}

// GetPayment retrieves a ledger entry by ID.
func (s *PostgresStore) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFound("payment", paymentID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get payment: %w", err))
	}
	return payment, nil
}

// ListPayments retrieves the ledger of an order in recording order.
func (s *PostgresStore) ListPayments(ctx context.Context, orderID string) ([]*models.Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY recorded_at, seq`, orderID)
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
		return nil, classify(fmt.Errorf("failed to iterate payments: %w", err))
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	payment := &models.Payment{}
	var (
		amount, tendered pgtype.Numeric
		terminalID       *string
	)
	if err := row.Scan(&payment.ID, &payment.OrderID, &amount, &payment.Method,
		&tendered, &terminalID, &payment.RecordedAt); err != nil {
		return nil, err
	}
	if err := numerics(&payment.Amount, &amount, &payment.Tendered, &tendered); err != nil {
		return nil, err
	}
	if terminalID != nil {
		payment.TerminalID = *terminalID
	}
	return payment, nil
}
