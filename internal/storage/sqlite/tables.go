package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/tableside/internal/models"
)

const tableColumns = `id, venue_id, number, capacity, section, explicit_status,
	current_guests, customer_name, seated_at, version, updated_at`

// CreateTable persists a new table.
func (s *SQLiteStore) CreateTable(ctx context.Context, table *models.Table) error {
	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	if table.ExplicitStatus == "" {
		table.ExplicitStatus = models.TableAvailable
	}
	table.Version = 1
	table.UpdatedAt = time.Now().Unix()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dining_tables (`+tableColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		table.ID, table.VenueID, table.Number, table.Capacity, table.Section, table.ExplicitStatus,
		table.CurrentGuests, nullString(table.CustomerName), nullUnix(table.SeatedAt),
		table.Version, table.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.Invalid("number", "table %d already exists in venue %s", table.Number, table.VenueID)
		}
		return classify(fmt.Errorf("failed to insert table: %w", err))
	}
	return nil
}

// GetTable retrieves a table by ID.
func (s *SQLiteStore) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	table, err := scanTable(s.db.QueryRowContext(ctx,
		`SELECT `+tableColumns+` FROM dining_tables WHERE id = ?`, tableID))
	if err == sql.ErrNoRows {
		return nil, models.NotFound("table", tableID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get table: %w", err))
	}
	return table, nil
}

// ListTables retrieves the tables of a venue ordered by number.
func (s *SQLiteStore) ListTables(ctx context.Context, venueID string) ([]*models.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tableColumns+` FROM dining_tables WHERE venue_id = ? ORDER BY number`,
		venueID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list tables: %w", err))
	}
	defer rows.Close()

	var tables []*models.Table
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return tables, nil
}

// UpdateTable writes the table if its version is current.
func (s *SQLiteStore) UpdateTable(ctx context.Context, table *models.Table) error {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE dining_tables SET capacity = ?, section = ?, explicit_status = ?, current_guests = ?,
			customer_name = ?, seated_at = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		table.Capacity, table.Section, table.ExplicitStatus, table.CurrentGuests,
		nullString(table.CustomerName), nullUnix(table.SeatedAt), now, table.ID, table.Version,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to update table: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetTable(ctx, table.ID); err != nil {
			return err
		}
		return fmt.Errorf("table %s at version %d: %w", table.ID, table.Version, models.ErrConflict)
	}

	table.Version++
	table.UpdatedAt = now
	return nil
}

func scanTable(row rowScanner) (*models.Table, error) {
	table := &models.Table{}
	var (
		customerName sql.NullString
		seatedAt     sql.NullInt64
	)
	if err := row.Scan(&table.ID, &table.VenueID, &table.Number, &table.Capacity, &table.Section,
		&table.ExplicitStatus, &table.CurrentGuests, &customerName, &seatedAt,
		&table.Version, &table.UpdatedAt); err != nil {
		return nil, err
	}
	table.CustomerName = customerName.String
	table.SeatedAt = seatedAt.Int64
	return table, nil
}

func nullUnix(ts int64) sql.NullInt64 {
	return sql.NullInt64{Int64: ts, Valid: ts != 0}
}
