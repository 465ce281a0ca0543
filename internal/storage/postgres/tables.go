package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmynk/tableside/internal/models"
)

const tableColumns = `id, venue_id, number, capacity, section, explicit_status,
	current_guests, customer_name, seated_at, version, updated_at`

// CreateTable persists a new table.
func (s *PostgresStore) CreateTable(ctx context.Context, table *models.Table) error {
	if table.ID == "" {
		table.ID = uuid.New().String()
	}
	if table.ExplicitStatus == "" {
		table.ExplicitStatus = models.TableAvailable
	}
	table.Version = 1
	table.UpdatedAt = time.Now().Unix()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dining_tables (`+tableColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		table.ID, table.VenueID, table.Number, table.Capacity, table.Section, table.ExplicitStatus,
		table.CurrentGuests, nullString(table.CustomerName), nullUnix(table.SeatedAt),
		table.Version, table.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Invalid("number", "table %d already exists in venue %s", table.Number, table.VenueID)
		}
		return classify(fmt.Errorf("failed to insert table: %w", err))
	}
	return nil
}

// GetTable retrieves a table by ID.
func (s *PostgresStore) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	table, err := scanTable(s.pool.QueryRow(ctx,
		`SELECT `+tableColumns+` FROM dining_tables WHERE id = $1`, tableID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFound("table", tableID)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get table: %w", err))
	}
	return table, nil
}

// ListTables retrieves the tables of a venue ordered by number.
func (s *PostgresStore) ListTables(ctx context.Context, venueID string) ([]*models.Table, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tableColumns+` FROM dining_tables WHERE venue_id = $1 ORDER BY number`, venueID)
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
		return nil, classify(fmt.Errorf("failed to iterate tables: %w", err))
	}
	return tables, nil
}

// UpdateTable writes the table if its version is current.
func (s *PostgresStore) UpdateTable(ctx context.Context, table *models.Table) error {
	now := time.Now().Unix()
	tag, err := s.pool.Exec(ctx,
		`UPDATE dining_tables SET capacity = $1, section = $2, explicit_status = $3, current_guests = $4,
			customer_name = $5, seated_at = $6, version = version + 1, updated_at = $7
		 WHERE id = $8 AND version = $9`,
		table.Capacity, table.Section, table.ExplicitStatus, table.CurrentGuests,
		nullString(table.CustomerName), nullUnix(table.SeatedAt), now, table.ID, table.Version,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to update table: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTable(ctx, table.ID); err != nil {
			return err
		}
		return fmt.Errorf("table %s at version %d: %w", table.ID, table.Version, models.ErrConflict)
	}

	table.Version++
	table.UpdatedAt = now
	return nil
}

func scanTable(row pgx.Row) (*models.Table, error) {
	table := &models.Table{}
	var (
		customerName *string
		seatedAt     *int64
	)
	if err := row.Scan(&table.ID, &table.VenueID, &table.Number, &table.Capacity, &table.Section,
		&table.ExplicitStatus, &table.CurrentGuests, &customerName, &seatedAt,
		&table.Version, &table.UpdatedAt); err != nil {
		return nil, err
	}
	if customerName != nil {
		table.CustomerName = *customerName
	}
	if seatedAt != nil {
		table.SeatedAt = *seatedAt
	}
	return table, nil
}
