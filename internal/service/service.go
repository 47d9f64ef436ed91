package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"swift-coupons/internal/cart"
	"swift-coupons/internal/database"
	"swift-coupons/internal/deal"
	"swift-coupons/internal/events"
	"swift-coupons/internal/features"
	"swift-coupons/internal/models"
	"swift-coupons/internal/qualifier"
	"swift-coupons/internal/scheduler"
	"swift-coupons/internal/tracing"
	"swift-coupons/internal/validation"
)

// ErrNotFound is returned for unknown carts, cart lines, coupons, products
// and customers.
var ErrNotFound = errors.New("not found")

// Validation priorities. Lower runs first.
const (
	PrioritySchedule  = 10
	PriorityQualifier = 12
)

const maxOrdersPerRequest = 1000

// StoreConfig holds store-wide settings.
type StoreConfig struct {
	Location *time.Location
	Currency string
	CartURL  string
}

// Options wires the service's collaborators.
type Options struct {
	DB       *database.DB
	Carts    *cart.Store
	Events   *events.Manager
	Features *features.Manager
	Registry *qualifier.Registry
	Logger   *slog.Logger
	Store    StoreConfig
	Now      func() time.Time
}

// Service provides checkout business logic.
type Service struct {
	db        *database.DB
	carts     *cart.Store
	events    *events.Manager
	features  *features.Manager
	registry  *qualifier.Registry
	evaluator *qualifier.Evaluator
	scheduler *scheduler.Scheduler
	matcher   *deal.Matcher
	logger    *slog.Logger
	store     StoreConfig
	now       func() time.Time
}

// NewService creates a new service instance and subscribes the scheduler,
// qualifier and deal handlers to opts.Events.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Events == nil {
		opts.Events = events.NewManager(true)
	}
	if opts.Features == nil {
		opts.Features = features.Defaults()
	}
	if opts.Registry == nil {
		opts.Registry = qualifier.DefaultRegistry()
	}
	if opts.Store.Location == nil {
		opts.Store.Location = time.UTC
	}
	if opts.Store.Currency == "" {
		opts.Store.Currency = "$"
	}
	if opts.Store.CartURL == "" {
		opts.Store.CartURL = "/cart"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	flags := opts.Features
	s := &Service{
		db:        opts.DB,
		carts:     opts.Carts,
		events:    opts.Events,
		features:  flags,
		registry:  opts.Registry,
		evaluator: qualifier.NewEvaluator(opts.Registry, opts.Logger),
		scheduler: scheduler.New(opts.Store.Location, func() bool {
			return flags.IsEnabled(features.FeatureWeekdaySchedule)
		}),
		matcher: deal.NewMatcher(catalog{db: opts.DB}, cart.NewLineKey, opts.Logger),
		logger:  opts.Logger,
		store:   opts.Store,
		now:     opts.Now,
	}
	s.subscribe()
	return s
}

func (s *Service) subscribe() {
	s.events.Subscribe(events.EventCouponValidate, PrioritySchedule, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.CouponValidateData)
		return s.scheduler.Check(data.Coupon.Scheduler, data.Now)
	})

	s.events.Subscribe(events.EventCouponValidate, PriorityQualifier, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.CouponValidateData)
		env := &qualifier.Env{
			Cart:     data.Cart,
			Shopper:  data.Shopper,
			Now:      data.Now,
			Currency: s.store.Currency,
		}
		return s.evaluator.Evaluate(env, data.Coupon.Qualifiers)
	})

	s.events.Subscribe(events.EventCouponApplied, 10, func(ctx context.Context, e events.Event) error {
		if !s.features.IsEnabled(features.FeatureBXGX) {
			return nil
		}
		data := e.Data.(events.CouponData)
		ctx, span := tracing.GetTracer().StartSpan(ctx, "deal.Process")
		defer span.End()
		span.SetAttributes(attribute.String("coupon.code", data.Coupon.Code))
		return s.matcher.Process(ctx, data.Cart, data.Coupon)
	})

	s.events.Subscribe(events.EventCouponRemoved, 10, func(ctx context.Context, e events.Event) error {
		data := e.Data.(events.CouponData)
		if n := deal.Clear(data.Cart, data.Coupon.Code); n > 0 {
			s.logger.Debug("removed deal lines", "coupon", data.Coupon.Code, "lines", n)
		}
		return nil
	})

	s.events.Subscribe(events.EventCartItemQuantityUpdated, 10, func(ctx context.Context, e events.Event) error {
		if !s.features.IsEnabled(features.FeatureBXGX) {
			return nil
		}
		data := e.Data.(events.QuantityUpdatedData)
		return s.matcher.Requalify(ctx, data.Cart, data.LineKey, data.Coupons)
	})

	s.events.Subscribe(events.EventBeforeCalculateTotals, 10, func(ctx context.Context, e events.Event) error {
		deal.RewritePrices(e.Data.(events.CartData).Cart)
		return nil
	})
}

// catalog adapts the product table to deal.Catalog.
type catalog struct {
	db *database.DB
}

func (c catalog) Product(ctx context.Context, id string) (models.Product, error) {
	p, err := c.db.GetProduct(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Product{}, deal.ErrProductNotFound
	}
	return p, err
}

// UpsertCoupon creates or updates the coupon stored under code. Empty
// qualifier groups are dropped before validation.
func (s *Service) UpsertCoupon(ctx context.Context, code string, c models.Coupon) (*models.Coupon, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.UpsertCoupon")
	defer span.End()

	c.Code = models.NormalizeCode(code)
	c.Qualifiers = validation.NormalizeQualifiers(c.Qualifiers)
	span.SetAttributes(attribute.String("coupon.code", c.Code))

	if err := validation.ValidateCoupon(c); err != nil {
		return nil, err
	}
	s.warnUnknownRules(c)

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if err := s.db.UpsertCoupon(ctx, c); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.GetCoupon(ctx, c.Code)
}

func (s *Service) warnUnknownRules(c models.Coupon) {
	for _, g := range c.Qualifiers.Data {
		for _, r := range g.Rules {
			if r.IsSwitch() || s.registry.Has(qualifier.Kind(r.ID)) {
				continue
			}
			s.logger.Warn("coupon references unknown rule", "coupon", c.Code, "rule", r.ID)
		}
	}
}

// GetCoupon returns the coupon stored under code.
func (s *Service) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	code = models.NormalizeCode(code)
	c, err := s.db.GetCoupon(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: coupon %s", ErrNotFound, code)
	}
	return c, err
}

// DeleteCoupon removes the coupon stored under code.
func (s *Service) DeleteCoupon(ctx context.Context, code string) error {
	code = models.NormalizeCode(code)
	err := s.db.DeleteCoupon(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: coupon %s", ErrNotFound, code)
	}
	return err
}

// CreateProduct creates or updates a catalog product.
func (s *Service) CreateProduct(ctx context.Context, p models.Product) error {
	if err := validation.ValidateProduct(p); err != nil {
		return err
	}
	return s.db.UpsertProduct(ctx, p)
}

// CreateCustomer creates or updates a customer.
func (s *Service) CreateCustomer(ctx context.Context, c models.Customer) error {
	if err := validation.ValidateCustomer(c); err != nil {
		return err
	}
	return s.db.UpsertCustomer(ctx, c)
}

// CreateOrders ingests historical orders.
func (s *Service) CreateOrders(ctx context.Context, orders []models.Order) (int, error) {
	if len(orders) == 0 {
		return 0, &validation.ValidationError{Field: "orders", Message: "no orders provided"}
	}

	if len(orders) > maxOrdersPerRequest {
		return 0, &validation.ValidationError{Field: "orders", Message: fmt.Sprintf("cannot process more than %d orders per request", maxOrdersPerRequest)}
	}

	// Validate all orders before inserting
	for i, o := range orders {
		if err := validation.ValidateOrder(o); err != nil {
			return 0, fmt.Errorf("invalid order at index %d: %w", i, err)
		}
	}

	return s.db.InsertOrders(ctx, orders)
}
