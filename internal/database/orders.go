package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"swift-coupons/internal/models"
)

// InsertOrders inserts multiple orders with their items in a single
// transaction. Orders whose id already exists are skipped.
func (db *DB) InsertOrders(ctx context.Context, orders []models.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderStmt, err := tx.PrepareContext(ctx, `INSERT INTO orders (id, customer_id, total, placed_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer orderStmt.Close()

	itemStmt, err := tx.PrepareContext(ctx, `INSERT INTO order_items (order_id, product_id, quantity, total)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer itemStmt.Close()

	inserted := 0
	for _, o := range orders {
		res, err := orderStmt.ExecContext(ctx, o.ID, o.CustomerID, o.Total, o.PlacedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return 0, fmt.Errorf("failed to insert order %s: %w", o.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		for _, item := range o.Items {
			if _, err := itemStmt.ExecContext(ctx, o.ID, item.ProductID, item.Quantity, item.Total); err != nil {
				return 0, fmt.Errorf("failed to insert item of order %s: %w", o.ID, err)
			}
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// GetHistory aggregates a customer's orders. Category spend is attributed to
// each category of the product as currently catalogued.
func (db *DB) GetHistory(ctx context.Context, customerID string) (models.History, error) {
	h := models.History{
		TotalSpent:      decimal.Zero,
		SpentByCategory: map[string]decimal.Decimal{},
		OrderedProducts: map[string]int{},
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT total, placed_at FROM orders WHERE customer_id = ?`, customerID)
	if err != nil {
		return h, fmt.Errorf("failed to query orders: %w", err)
	}
	for rows.Next() {
		var total decimal.Decimal
		var placedAt string
		if err := rows.Scan(&total, &placedAt); err != nil {
			rows.Close()
			return h, fmt.Errorf("failed to scan order: %w", err)
		}
		t, err := time.Parse(time.RFC3339, placedAt)
		if err != nil {
			rows.Close()
			return h, fmt.Errorf("failed to parse placed_at: %w", err)
		}
		h.OrderCount++
		h.TotalSpent = h.TotalSpent.Add(total)
		if h.LastOrderAt == nil || t.After(*h.LastOrderAt) {
			h.LastOrderAt = &t
		}
	}
	if err := rows.Close(); err != nil {
		return h, err
	}
	if err := rows.Err(); err != nil {
		return h, fmt.Errorf("error iterating orders: %w", err)
	}

	itemRows, err := db.conn.QueryContext(ctx, `SELECT i.product_id, i.quantity, i.total, COALESCE(p.categories, '[]')
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		LEFT JOIN products p ON p.id = i.product_id
		WHERE o.customer_id = ?`, customerID)
	if err != nil {
		return h, fmt.Errorf("failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var productID, categoriesJSON string
		var quantity int
		var total decimal.Decimal
		if err := itemRows.Scan(&productID, &quantity, &total, &categoriesJSON); err != nil {
			return h, fmt.Errorf("failed to scan order item: %w", err)
		}
		h.OrderedProducts[productID] += quantity

		var categories []string
		if err := unmarshalJSON("categories", categoriesJSON, &categories); err != nil {
			return h, err
		}
		for _, c := range categories {
			h.SpentByCategory[c] = h.SpentByCategory[c].Add(total)
		}
	}
	if err := itemRows.Err(); err != nil {
		return h, fmt.Errorf("error iterating order items: %w", err)
	}

	return h, nil
}
