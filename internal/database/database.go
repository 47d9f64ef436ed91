package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("database: not found")

// DB wraps the database connection and provides methods for data access.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS coupons (
			id TEXT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			discount_type TEXT NOT NULL,
			amount TEXT NOT NULL,
			expires_at TEXT,
			url_code TEXT,
			auto_apply INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS coupon_meta (
			coupon_id TEXT NOT NULL REFERENCES coupons(id) ON DELETE CASCADE,
			meta_key TEXT NOT NULL,
			meta_value TEXT NOT NULL,
			PRIMARY KEY (coupon_id, meta_key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_url_code ON coupons(url_code)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_auto_apply ON coupons(auto_apply)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price TEXT NOT NULL,
			weight REAL NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0,
			categories TEXT NOT NULL DEFAULT '[]',
			terms TEXT NOT NULL DEFAULT '{}',
			meta TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			roles TEXT NOT NULL DEFAULT '[]',
			registered_at TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			total TEXT NOT NULL,
			placed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			total TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_placed_at ON orders(customer_id, placed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// marshalJSON encodes v for a TEXT column, using fallback for nil values.
func marshalJSON(v interface{}, fallback string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return fallback, nil
	}
	return string(data), nil
}

// unmarshalJSON decodes a TEXT column. Empty columns leave dest untouched.
func unmarshalJSON(column, serialized string, dest interface{}) error {
	if serialized == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(serialized), dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", column, err)
	}
	return nil
}
