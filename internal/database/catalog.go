package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"swift-coupons/internal/models"
)

// UpsertProduct creates or updates a catalog product.
func (db *DB) UpsertProduct(ctx context.Context, p models.Product) error {
	categories, err := marshalJSON(p.Categories, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	terms, err := marshalJSON(p.Terms, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode terms: %w", err)
	}
	meta, err := marshalJSON(p.Meta, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	query := `INSERT INTO products (id, name, price, weight, stock, categories, terms, meta)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		price = excluded.price,
		weight = excluded.weight,
		stock = excluded.stock,
		categories = excluded.categories,
		terms = excluded.terms,
		meta = excluded.meta`

	if _, err := db.conn.ExecContext(ctx, query, p.ID, p.Name, p.Price, p.Weight, p.Stock, categories, terms, meta); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// GetProduct loads a product by id.
func (db *DB) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var p models.Product
	var categories, terms, meta string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, price, weight, stock, categories, terms, meta FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Weight, &p.Stock, &categories, &terms, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, ErrNotFound
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to get product: %w", err)
	}

	if err := unmarshalJSON("categories", categories, &p.Categories); err != nil {
		return models.Product{}, err
	}
	if err := unmarshalJSON("terms", terms, &p.Terms); err != nil {
		return models.Product{}, err
	}
	if err := unmarshalJSON("meta", meta, &p.Meta); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

// UpsertCustomer creates or updates a customer.
func (db *DB) UpsertCustomer(ctx context.Context, c models.Customer) error {
	roles, err := marshalJSON(c.Roles, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode roles: %w", err)
	}
	meta, err := marshalJSON(c.Meta, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}

	query := `INSERT INTO customers (id, email, roles, registered_at, meta)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		email = excluded.email,
		roles = excluded.roles,
		registered_at = excluded.registered_at,
		meta = excluded.meta`

	_, err = db.conn.ExecContext(ctx, query, c.ID, c.Email, roles, c.RegisteredAt.UTC().Format(time.RFC3339), meta)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

// GetCustomer loads a customer by id.
func (db *DB) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	var roles, registeredAt, meta string

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, roles, registered_at, meta FROM customers WHERE id = ?`, id,
	).Scan(&c.ID, &c.Email, &roles, &registeredAt, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	if err := unmarshalJSON("roles", roles, &c.Roles); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("meta", meta, &c.Meta); err != nil {
		return nil, err
	}
	c.RegisteredAt, err = time.Parse(time.RFC3339, registeredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registered_at: %w", err)
	}
	return &c, nil
}
