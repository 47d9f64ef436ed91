package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Carts keep a snapshot of it per line.
type Product struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Price      decimal.Decimal     `json:"price"`
	Weight     float64             `json:"weight"`
	Stock      int                 `json:"stock"`
	Categories []string            `json:"categories"`
	Terms      map[string][]string `json:"terms,omitempty"` // taxonomy -> term slugs
	Meta       map[string]string   `json:"meta,omitempty"`
}

// InCategory reports whether the product is assigned to category.
func (p Product) InCategory(category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Customer is a registered shopper.
type Customer struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Roles        []string          `json:"roles"`
	RegisteredAt time.Time         `json:"registered_at"`
	Meta         map[string]string `json:"meta,omitempty"`
}

// Order is a completed order used for customer history rules.
type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	PlacedAt   time.Time       `json:"placed_at"`
	Items      []OrderItem     `json:"items"`
}

type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

// History aggregates a customer's past orders.
type History struct {
	OrderCount      int
	TotalSpent      decimal.Decimal
	SpentByCategory map[string]decimal.Decimal
	OrderedProducts map[string]int
	LastOrderAt     *time.Time
}

// Shopper is the identity a request is evaluated for. Customer is nil for
// guests.
type Shopper struct {
	Customer *Customer
	History  History
}

// LoggedIn reports whether the shopper is a registered customer.
func (s Shopper) LoggedIn() bool { return s.Customer != nil }

// Guest returns an anonymous shopper.
func Guest() Shopper {
	return Shopper{History: History{
		SpentByCategory: map[string]decimal.Decimal{},
		OrderedProducts: map[string]int{},
	}}
}
