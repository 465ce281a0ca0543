package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Monetary columns hold decimal strings so no precision is lost to REAL.
const schema = `
CREATE TABLE IF NOT EXISTS dining_tables (
    id TEXT PRIMARY KEY,
    venue_id TEXT NOT NULL,
    number INTEGER NOT NULL,
    capacity INTEGER NOT NULL,
    section TEXT NOT NULL DEFAULT '',
    explicit_status TEXT NOT NULL,
    current_guests INTEGER NOT NULL DEFAULT 0,
    customer_name TEXT,
    seated_at INTEGER,
    version INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (venue_id, number)
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    venue_id TEXT NOT NULL,
    table_number INTEGER,
    kind TEXT NOT NULL,
    discount_type TEXT NOT NULL DEFAULT '',
    discount_value TEXT NOT NULL DEFAULT '0',
    tax_rate TEXT NOT NULL,
    subtotal TEXT NOT NULL,
    discount_amount TEXT NOT NULL,
    tax TEXT NOT NULL,
    total TEXT NOT NULL,
    status TEXT NOT NULL,
    payment_status TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    unit_price TEXT NOT NULL,
    notes TEXT,
    status TEXT NOT NULL,
    refunded INTEGER NOT NULL DEFAULT 0,
    refund_reason TEXT,
    FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    method TEXT NOT NULL,
    tendered TEXT NOT NULL DEFAULT '0',
    terminal_id TEXT,
    recorded_at INTEGER NOT NULL,
    FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_orders_venue_id ON orders(venue_id);
CREATE INDEX IF NOT EXISTS idx_orders_venue_table ON orders(venue_id, table_number);
CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments(order_id);
CREATE INDEX IF NOT EXISTS idx_dining_tables_venue_id ON dining_tables(venue_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
