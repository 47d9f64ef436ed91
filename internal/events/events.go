package events

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"swift-coupons/internal/models"
)

// ErrDisabled is returned by Validate once the manager no longer dispatches.
var ErrDisabled = errors.New("events: manager disabled")

// EventType represents the type of event.
type EventType string

const (
	// EventCouponValidate is dispatched before a coupon is accepted. Any
	// handler error vetoes the coupon.
	EventCouponValidate EventType = "coupon.validate"
	// EventCouponApplied is dispatched after a coupon is added to a cart
	EventCouponApplied EventType = "coupon.applied"
	// EventCouponRemoved is dispatched after a coupon is removed from a cart
	EventCouponRemoved EventType = "coupon.removed"
	// EventBeforeCalculateTotals is dispatched before cart totals are computed
	EventBeforeCalculateTotals EventType = "cart.before_calculate_totals"
	// EventCartItemQuantityUpdated is dispatched after a line quantity changes
	EventCartItemQuantityUpdated EventType = "cart.item_quantity_updated"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// CouponValidateData carries the coupon under validation.
type CouponValidateData struct {
	Cart    *models.Cart
	Coupon  *models.Coupon
	Shopper models.Shopper
	Now     time.Time
}

// CouponData carries the cart and code for applied/removed events.
type CouponData struct {
	Cart   *models.Cart
	Coupon *models.Coupon
}

// CartData carries the cart for totals recalculation.
type CartData struct {
	Cart *models.Cart
}

// QuantityUpdatedData describes a line quantity change.
type QuantityUpdatedData struct {
	Cart        *models.Cart
	LineKey     string
	OldQuantity int
	NewQuantity int
	// Coupons are the applied coupons, loaded once for the request.
	Coupons []*models.Coupon
}

// Handler is a function that handles events. Handlers may mutate the cart
// carried in the event data.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	priority int
	handler  Handler
}

// Manager dispatches events synchronously. Handlers for an event type run in
// ascending priority; equal priorities run in subscription order.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]subscription),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, priority int, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}

	current := m.handlers[eventType]
	subs := make([]subscription, len(current), len(current)+1)
	copy(subs, current)
	subs = append(subs, subscription{priority: priority, handler: handler})
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].priority < subs[j].priority })
	m.handlers[eventType] = subs
}

// Publish runs every handler for eventType in order and returns the first
// error, skipping the remaining handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) error {
	m.mu.RLock()
	if !m.enabled {
		m.mu.RUnlock()
		return nil
	}
	subs := m.handlers[eventType]
	m.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Validate dispatches EventCouponValidate. A disabled manager refuses every
// coupon with ErrDisabled, since its validators cannot run.
func (m *Manager) Validate(ctx context.Context, data CouponValidateData) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	return m.Publish(ctx, EventCouponValidate, data)
}

// CouponApplied dispatches EventCouponApplied.
func (m *Manager) CouponApplied(ctx context.Context, cart *models.Cart, coupon *models.Coupon) error {
	return m.Publish(ctx, EventCouponApplied, CouponData{Cart: cart, Coupon: coupon})
}

// CouponRemoved dispatches EventCouponRemoved.
func (m *Manager) CouponRemoved(ctx context.Context, cart *models.Cart, coupon *models.Coupon) error {
	return m.Publish(ctx, EventCouponRemoved, CouponData{Cart: cart, Coupon: coupon})
}

// BeforeCalculateTotals dispatches EventBeforeCalculateTotals.
func (m *Manager) BeforeCalculateTotals(ctx context.Context, cart *models.Cart) error {
	return m.Publish(ctx, EventBeforeCalculateTotals, CartData{Cart: cart})
}

// QuantityUpdated dispatches EventCartItemQuantityUpdated.
func (m *Manager) QuantityUpdated(ctx context.Context, data QuantityUpdatedData) error {
	return m.Publish(ctx, EventCartItemQuantityUpdated, data)
}

// Enabled reports whether dispatch is active.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.enabled
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]subscription)
}
