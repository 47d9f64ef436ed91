// Package cart persists shopper carts in the session cache.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"swift-coupons/internal/cache"
	"swift-coupons/internal/models"
	"swift-coupons/internal/tracing"
)

var ErrNotFound = errors.New("cart: not found")

const keyPrefix = "cart:"

// Store keeps carts as JSON documents. Writes are last-write-wins per cart.
type Store struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a store whose carts expire ttl after their last save.
func NewStore(c cache.Cache, ttl time.Duration) *Store {
	return &Store{cache: c, ttl: ttl, now: time.Now}
}

// NewLineKey returns a fresh cart line key.
func NewLineKey() string {
	return uuid.New().String()
}

// Create saves and returns an empty cart.
func (s *Store) Create(ctx context.Context, customerID string) (*models.Cart, error) {
	c := &models.Cart{
		ID:             uuid.New().String(),
		CustomerID:     customerID,
		Lines:          []models.CartLine{},
		AppliedCoupons: []string{},
	}
	if err := s.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads a cart by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Cart, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "cart.Get")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", id))

	var c models.Cart
	err := cache.GetJSON(ctx, s.cache, keyPrefix+id, &c)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load cart %s: %w", id, err)
	}
	return &c, nil
}

// Save writes the cart and refreshes its expiry.
func (s *Store) Save(ctx context.Context, c *models.Cart) error {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "cart.Save")
	defer span.End()
	span.SetAttributes(attribute.String("cart.id", c.ID), attribute.Int("cart.lines", len(c.Lines)))

	c.UpdatedAt = s.now().UTC()
	if err := cache.SetJSON(ctx, s.cache, keyPrefix+c.ID, c, s.ttl); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save cart %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes a cart.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, keyPrefix+id)
}
