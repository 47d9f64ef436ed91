package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"swift-coupons/internal/cart"
	"swift-coupons/internal/database"
	"swift-coupons/internal/deal"
	"swift-coupons/internal/events"
	"swift-coupons/internal/features"
	"swift-coupons/internal/models"
	"swift-coupons/internal/qualifier"
	"swift-coupons/internal/tracing"
	"swift-coupons/internal/validation"
)

// Shopper-facing messages.
const (
	MsgCouponExpired  = "This coupon has expired."
	MsgAlreadyApplied = "Coupon code already applied!"
	MsgCannotRemove   = "This coupon cannot be removed from the cart."
	msgCouponGone     = "Coupon %q has been removed because it no longer exists."
)

// URLErrorParam is the query parameter carrying a URL coupon failure.
const URLErrorParam = "coupon_error"

type customerKey struct{}

// WithCustomerID returns a context identifying the shopper as customer id.
func WithCustomerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, customerKey{}, id)
}

// CustomerIDFromContext returns the customer id set by WithCustomerID.
func CustomerIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(customerKey{}).(string)
	return id
}

// request holds the state of one cart operation. Coupons and the shopper
// are loaded at most once per request.
type request struct {
	*Service
	cart       *models.Cart
	now        time.Time
	coupons    map[string]*models.Coupon
	auto       []*models.Coupon
	autoLoaded bool
	shopper    *models.Shopper
	notices    []string
}

func (s *Service) newRequest(c *models.Cart) *request {
	return &request{
		Service: s,
		cart:    c,
		now:     s.now(),
		coupons: make(map[string]*models.Coupon),
	}
}

func (s *Service) begin(ctx context.Context, cartID string) (*request, error) {
	c, err := s.carts.Get(ctx, cartID)
	if errors.Is(err, cart.ErrNotFound) {
		return nil, fmt.Errorf("%w: cart %s", ErrNotFound, cartID)
	}
	if err != nil {
		return nil, err
	}
	return s.newRequest(c), nil
}

func (r *request) coupon(ctx context.Context, code string) (*models.Coupon, error) {
	code = models.NormalizeCode(code)
	if c, ok := r.coupons[code]; ok {
		if c == nil {
			return nil, fmt.Errorf("%w: coupon %s", ErrNotFound, code)
		}
		return c, nil
	}

	c, err := r.db.GetCoupon(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		r.coupons[code] = nil
		return nil, fmt.Errorf("%w: coupon %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	r.coupons[code] = c
	return c, nil
}

// appliedCoupons returns the applied coupons that still exist.
func (r *request) appliedCoupons(ctx context.Context) ([]*models.Coupon, error) {
	var out []*models.Coupon
	for _, code := range r.cart.AppliedCoupons {
		c, err := r.coupon(ctx, code)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *request) autoApplyCoupons(ctx context.Context) ([]*models.Coupon, error) {
	if r.autoLoaded {
		return r.auto, nil
	}
	list, err := r.db.ListAutoApplyCoupons(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		if _, ok := r.coupons[c.Code]; !ok {
			r.coupons[c.Code] = c
		}
	}
	r.auto, r.autoLoaded = list, true
	return list, nil
}

// currentShopper resolves the customer from the request context, falling
// back to the cart owner. Unknown customers are treated as guests.
func (r *request) currentShopper(ctx context.Context) (models.Shopper, error) {
	if r.shopper != nil {
		return *r.shopper, nil
	}

	shopper := models.Guest()
	id := CustomerIDFromContext(ctx)
	if id == "" {
		id = r.cart.CustomerID
	}
	if id != "" {
		customer, err := r.db.GetCustomer(ctx, id)
		switch {
		case errors.Is(err, database.ErrNotFound):
			r.logger.Debug("unknown customer, evaluating as guest", "customer_id", id)
		case err != nil:
			return models.Shopper{}, fmt.Errorf("failed to load customer: %w", err)
		default:
			history, err := r.db.GetHistory(ctx, id)
			if err != nil {
				return models.Shopper{}, fmt.Errorf("failed to load order history: %w", err)
			}
			shopper = models.Shopper{Customer: customer, History: history}
		}
	}
	r.shopper = &shopper
	return shopper, nil
}

// validate runs the expiry check and the validate event for c against the
// current cart.
func (r *request) validate(ctx context.Context, c *models.Coupon) error {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "coupon.Validate")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.code", c.Code))

	if c.ExpiresAt != nil && !r.now.Before(*c.ExpiresAt) {
		return &qualifier.QualificationError{Message: MsgCouponExpired}
	}

	shopper, err := r.currentShopper(ctx)
	if err != nil {
		return err
	}

	err = r.events.Validate(ctx, events.CouponValidateData{
		Cart:    r.cart,
		Coupon:  c,
		Shopper: shopper,
		Now:     r.now,
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *request) apply(ctx context.Context, c *models.Coupon) error {
	r.cart.AddCoupon(c.Code)
	r.logger.Info("coupon applied", "cart_id", r.cart.ID, "coupon", c.Code)
	return r.events.CouponApplied(ctx, r.cart, c)
}

func (r *request) remove(ctx context.Context, c *models.Coupon) error {
	r.cart.RemoveCoupon(c.Code)
	r.logger.Info("coupon removed", "cart_id", r.cart.ID, "coupon", c.Code)
	return r.events.CouponRemoved(ctx, r.cart, c)
}

func (r *request) applyCode(ctx context.Context, code string) error {
	c, err := r.coupon(ctx, code)
	if err != nil {
		return err
	}
	if r.cart.HasCoupon(c.Code) {
		return &qualifier.QualificationError{Message: MsgAlreadyApplied}
	}
	if err := r.validate(ctx, c); err != nil {
		return err
	}
	return r.apply(ctx, c)
}

func (r *request) quantityChanged(ctx context.Context, key string, oldQty, newQty int) error {
	coupons, err := r.appliedCoupons(ctx)
	if err != nil {
		return err
	}
	return r.events.QuantityUpdated(ctx, events.QuantityUpdatedData{
		Cart:        r.cart,
		LineKey:     key,
		OldQuantity: oldQty,
		NewQuantity: newQty,
		Coupons:     coupons,
	})
}

// recheck removes applied coupons that were deleted or no longer validate.
// Removal of auto-applied coupons is silent.
func (r *request) recheck(ctx context.Context) error {
	codes := append([]string(nil), r.cart.AppliedCoupons...)
	for _, code := range codes {
		c, err := r.coupon(ctx, code)
		if errors.Is(err, ErrNotFound) {
			r.cart.RemoveCoupon(code)
			deal.Clear(r.cart, code)
			r.notices = append(r.notices, fmt.Sprintf(msgCouponGone, code))
			continue
		}
		if err != nil {
			return err
		}

		err = r.validate(ctx, c)
		var qe *qualifier.QualificationError
		if errors.As(err, &qe) {
			if err := r.remove(ctx, c); err != nil {
				return err
			}
			if !c.AutoApply.Enabled {
				r.notices = append(r.notices, qe.Message)
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// autoApply applies every auto-apply coupon that validates and that the
// shopper has not removed from this cart. Failures are silent.
func (r *request) autoApply(ctx context.Context) error {
	if !r.features.IsEnabled(features.FeatureAutoApply) {
		return nil
	}

	list, err := r.autoApplyCoupons(ctx)
	if err != nil {
		return err
	}
	for _, c := range list {
		if r.cart.HasCoupon(c.Code) || r.cart.IsDismissed(c.Code) {
			continue
		}
		err := r.validate(ctx, c)
		var qe *qualifier.QualificationError
		if errors.As(err, &qe) {
			r.logger.Debug("auto-apply coupon not valid", "cart_id", r.cart.ID, "coupon", c.Code, "reason", qe.Message)
			continue
		}
		if err != nil {
			return err
		}
		if err := r.apply(ctx, c); err != nil {
			return err
		}
		// the next candidate must see this coupon's deal lines at their deal price
		if err := r.reprice(ctx); err != nil {
			return err
		}
	}
	return nil
}

// reprice rewrites line prices for the deals currently in the cart.
func (r *request) reprice(ctx context.Context) error {
	return r.events.BeforeCalculateTotals(ctx, r.cart)
}

// finish reprices the cart, rechecks applied coupons, runs auto-apply,
// reprices again and saves it. Deal lines injected earlier in the request
// still carry their base price until the first reprice.
func (r *request) finish(ctx context.Context) (*models.CartResponse, error) {
	if err := r.reprice(ctx); err != nil {
		return nil, err
	}
	if err := r.recheck(ctx); err != nil {
		return nil, err
	}
	if err := r.autoApply(ctx); err != nil {
		return nil, err
	}
	if err := r.reprice(ctx); err != nil {
		return nil, err
	}

	totals, err := r.totals(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.carts.Save(ctx, r.cart); err != nil {
		return nil, err
	}

	return &models.CartResponse{Cart: *r.cart, Totals: totals, Notices: r.notices}, nil
}

// totals applies the native discount of every applied coupon to the
// subtotal. The discount never exceeds the subtotal.
func (r *request) totals(ctx context.Context) (models.Totals, error) {
	subtotal := r.cart.Subtotal()
	coupons, err := r.appliedCoupons(ctx)
	if err != nil {
		return models.Totals{}, err
	}

	hundred := decimal.NewFromInt(100)
	discount := decimal.Zero
	for _, c := range coupons {
		switch c.DiscountType {
		case models.DiscountPercent:
			discount = discount.Add(subtotal.Mul(c.Amount).Div(hundred))
		case models.DiscountFixedCart:
			discount = discount.Add(c.Amount)
		}
	}
	discount = decimal.Min(discount, subtotal).Round(2)

	return models.Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}, nil
}

// CreateCart creates an empty cart. customerID falls back to the customer
// in ctx.
func (s *Service) CreateCart(ctx context.Context, customerID string) (*models.CartResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.CreateCart")
	defer span.End()

	if customerID == "" {
		customerID = CustomerIDFromContext(ctx)
	}
	c, err := s.carts.Create(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.newRequest(c).finish(ctx)
}

// GetCart returns the cart with freshly calculated totals.
func (s *Service) GetCart(ctx context.Context, cartID string) (*models.CartResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.GetCart")
	defer span.End()

	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx)
}

// AddItem adds a product to the cart.
func (s *Service) AddItem(ctx context.Context, cartID string, req models.AddItemRequest) (*models.CartResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.AddItem")
	defer span.End()

	if err := validation.ValidateID(req.ProductID, "product_id"); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, &validation.ValidationError{Field: "quantity", Message: "must be positive"}
	}

	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}

	product, err := s.db.GetProduct(ctx, req.ProductID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, req.ProductID)
	}
	if err != nil {
		return nil, err
	}

	line := r.cart.AddLine(cart.NewLineKey(), product, req.Quantity, req.Meta, nil)
	key, newQty := line.Key, line.Quantity
	if err := r.quantityChanged(ctx, key, newQty-req.Quantity, newQty); err != nil {
		return nil, err
	}
	return r.finish(ctx)
}

// UpdateQuantity sets the quantity of a cart line. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, cartID, key string, quantity int) (*models.CartResponse, error) {
	if quantity < 0 {
		return nil, &validation.ValidationError{Field: "quantity", Message: "must not be negative"}
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, cartID, key)
	}

	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.UpdateQuantity")
	defer span.End()

	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}
	line, ok := r.cart.Line(key)
	if !ok {
		return nil, fmt.Errorf("%w: cart line %s", ErrNotFound, key)
	}
	oldQty := line.Quantity
	line.Quantity = quantity

	if err := r.quantityChanged(ctx, key, oldQty, quantity); err != nil {
		return nil, err
	}
	return r.finish(ctx)
}

// RemoveItem removes a cart line. Removing a deal line does not requalify
// deals, so the line stays removed until its coupon is applied again.
func (s *Service) RemoveItem(ctx context.Context, cartID, key string) (*models.CartResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.RemoveItem")
	defer span.End()

	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}
	line, ok := r.cart.Line(key)
	if !ok {
		return nil, fmt.Errorf("%w: cart line %s", ErrNotFound, key)
	}
	oldQty, isDeal := line.Quantity, line.Deal != nil
	r.cart.RemoveLine(key)

	if !isDeal {
		if err := r.quantityChanged(ctx, key, oldQty, 0); err != nil {
			return nil, err
		}
	}
	return r.finish(ctx)
}

// SetShipping sets the shipping destination of the cart.
func (s *Service) SetShipping(ctx context.Context, cartID string, addr models.Address) (*models.CartResponse, error) {
	addr.Country = strings.ToUpper(validation.SanitizeString(addr.Country))
	addr.State = strings.ToUpper(validation.SanitizeString(addr.State))
	if len(addr.Country) != 2 {
		return nil, &validation.ValidationError{Field: "country", Message: "must be a two-letter country code"}
	}

	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}
	r.cart.Shipping = addr
	return r.finish(ctx)
}

// ApplyCoupon validates code against the cart and applies it.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, code string) (*models.CartResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.ApplyCoupon")
	defer span.End()

	code = models.NormalizeCode(code)
	span.SetAttributes(attribute.String("cart.id", cartID), attribute.String("coupon.code", code))
	if err := validation.ValidateCode(code, "code"); err != nil {
		return nil, err
	}

	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := r.applyCode(ctx, code); err != nil {
		return nil, err
	}
	return r.finish(ctx)
}

// RemoveCoupon removes an applied coupon. Auto-apply coupons that do not
// allow removal are refused; removable ones are not auto-applied to this
// cart again.
func (s *Service) RemoveCoupon(ctx context.Context, cartID, code string) (*models.CartResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.RemoveCoupon")
	defer span.End()

	code = models.NormalizeCode(code)
	r, err := s.begin(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !r.cart.HasCoupon(code) {
		return nil, fmt.Errorf("%w: coupon %s is not applied", ErrNotFound, code)
	}

	c, err := r.coupon(ctx, code)
	if errors.Is(err, ErrNotFound) {
		r.cart.RemoveCoupon(code)
		deal.Clear(r.cart, code)
		return r.finish(ctx)
	}
	if err != nil {
		return nil, err
	}

	if c.AutoApply.Enabled && s.features.IsEnabled(features.FeatureAutoApply) {
		if !c.AutoApply.AllowUserToRemove {
			return nil, &qualifier.QualificationError{Message: MsgCannotRemove}
		}
		r.cart.Dismiss(c.Code)
	}
	if err := r.remove(ctx, c); err != nil {
		return nil, err
	}
	return r.finish(ctx)
}

// URLApplyRequest describes a visit to a coupon URL.
type URLApplyRequest struct {
	CartID  string
	Code    string
	Referer string
	Host    string
}

// URLApplyResult is where to send the shopper after a coupon URL visit.
type URLApplyResult struct {
	CartID   string
	Location string
}

// ApplyFromURL applies the coupon named by a coupon URL. The code is
// resolved as a coupon code first and as a URL override code second. A
// missing or unknown cart gets a new cart.
func (s *Service) ApplyFromURL(ctx context.Context, req URLApplyRequest) (*URLApplyResult, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "service.ApplyFromURL")
	defer span.End()

	r, err := s.urlRequest(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	result := &URLApplyResult{CartID: r.cart.ID, Location: s.store.CartURL}

	if !s.features.IsEnabled(features.FeatureURLCoupons) {
		return result, nil
	}

	c, err := r.resolveURLCoupon(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if c == nil || !c.URLApply.Enabled || r.cart.HasCoupon(c.Code) {
		return result, nil
	}
	span.SetAttributes(attribute.String("coupon.code", c.Code))

	err = r.validate(ctx, c)
	var qe *qualifier.QualificationError
	if errors.As(err, &qe) {
		result.Location = withQuery(s.store.CartURL, URLErrorParam, qe.Message)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.apply(ctx, c); err != nil {
		return nil, err
	}
	if _, err := r.finish(ctx); err != nil {
		return nil, err
	}

	switch {
	case c.URLApply.RedirectBackToOrigin:
		if sameOrigin(req.Referer, req.Host) {
			result.Location = req.Referer
		}
	case c.URLApply.RedirectToURL != "":
		result.Location = c.URLApply.RedirectToURL
	}
	return result, nil
}

func (s *Service) urlRequest(ctx context.Context, cartID string) (*request, error) {
	if cartID != "" {
		r, err := s.begin(ctx, cartID)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return r, err
		}
	}
	c, err := s.carts.Create(ctx, CustomerIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return s.newRequest(c), nil
}

func (r *request) resolveURLCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	code = models.NormalizeCode(code)
	if code == "" {
		return nil, nil
	}

	c, err := r.coupon(ctx, code)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c, err = r.db.GetCouponByURLCode(ctx, code)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.coupons[c.Code] = c
	return c, nil
}

// sameOrigin reports whether referer is a relative URL or points at host.
func sameOrigin(referer, host string) bool {
	if referer == "" {
		return false
	}
	u, err := url.Parse(referer)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return u.Scheme == "" && strings.HasPrefix(u.Path, "/")
	}
	return (u.Scheme == "http" || u.Scheme == "https") && strings.EqualFold(u.Host, host)
}

func withQuery(raw, key, value string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
