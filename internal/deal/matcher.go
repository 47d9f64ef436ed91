// Package deal implements Buy X Get X deals: injecting discounted "get" lines
// into a cart when its "buy" condition holds, and keeping their prices right.
package deal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"swift-coupons/internal/models"
)

// ErrProductNotFound is returned by a Catalog for unknown products.
var ErrProductNotFound = errors.New("deal: product not found")

// Catalog looks up current product data for get items.
type Catalog interface {
	Product(ctx context.Context, id string) (models.Product, error)
}

// Matcher applies deal configurations to carts.
type Matcher struct {
	catalog Catalog
	logger  *slog.Logger
	newKey  func() string
}

// NewMatcher creates a matcher. newKey generates keys for injected lines.
func NewMatcher(catalog Catalog, newKey func() string, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Matcher{catalog: catalog, logger: logger, newKey: newKey}
}

// MatchBuyItems reports whether the cart satisfies the buy condition. Lines
// injected by deals never count towards it. With MatchAll (the default)
// every item must match; with MatchAny one is enough. An empty item list
// never matches.
func MatchBuyItems(c *models.Cart, buy models.BuyCondition) bool {
	if len(buy.Items) == 0 {
		return false
	}

	matched := 0
	for _, item := range buy.Items {
		if matchBuyItem(c, item) {
			matched++
		}
	}

	if buy.Match == models.MatchAny {
		return matched > 0
	}
	return matched == len(buy.Items)
}

func matchBuyItem(c *models.Cart, item models.BuyItem) bool {
	need := int(item.Quantity)
	switch item.Type {
	case models.ItemProduct:
		for _, l := range c.Lines {
			if l.Deal == nil && l.ProductID == string(item.ID) && l.Quantity >= need {
				return true
			}
		}
	case models.ItemCategory:
		total := 0
		for _, l := range c.Lines {
			if l.Deal == nil && l.Product.InCategory(string(item.ID)) {
				total += l.Quantity
			}
		}
		return total > 0 && total >= need
	}
	return false
}

// DealPrice computes the unit price of a get item. The result never goes
// below zero. Unknown discount types report false.
func DealPrice(price decimal.Decimal, d models.Discount) (decimal.Decimal, bool) {
	var out decimal.Decimal
	switch d.Type {
	case models.DealPercent:
		hundred := decimal.NewFromInt(100)
		out = price.Mul(hundred.Sub(d.Value)).Div(hundred)
	case models.DealFixed:
		out = price.Sub(d.Value)
	case models.DealOverridePrice:
		out = d.Value
	default:
		return decimal.Zero, false
	}
	if out.IsNegative() {
		out = decimal.Zero
	}
	return out, true
}

type pricedItem struct {
	item    models.GetItem
	product models.Product
}

// ApplyGetItems injects deal lines for the reward into the cart, tagged with
// code. Category get items name no concrete product and are skipped.
func (m *Matcher) ApplyGetItems(ctx context.Context, c *models.Cart, code string, get models.GetReward) error {
	var items []pricedItem
	for _, item := range get.Items {
		if item.Type != models.ItemProduct {
			m.logger.Debug("skipping non-product get item", "coupon", code, "type", item.Type)
			continue
		}
		if item.Quantity <= 0 {
			continue
		}
		product, err := m.catalog.Product(ctx, string(item.ID))
		if errors.Is(err, ErrProductNotFound) {
			m.logger.Warn("deal product not found", "coupon", code, "product_id", item.ID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load deal product %s: %w", item.ID, err)
		}
		items = append(items, pricedItem{item: item, product: product})
	}
	if len(items) == 0 {
		return nil
	}

	switch get.Apply {
	case models.ApplyCheapest, models.ApplyMostExpensive:
		sort.SliceStable(items, func(i, j int) bool {
			if get.Apply == models.ApplyCheapest {
				return items[i].product.Price.LessThan(items[j].product.Price)
			}
			return items[i].product.Price.GreaterThan(items[j].product.Price)
		})
		items = items[:1]
	}

	for _, p := range items {
		price, ok := DealPrice(p.product.Price, p.item.Discount)
		if !ok {
			m.logger.Warn("unknown deal discount type", "coupon", code, "type", p.item.Discount.Type)
			continue
		}
		qty := int(p.item.Quantity)
		c.AddLine(m.newKey(), p.product, qty, nil, &models.DealMeta{
			Price:      price,
			Quantity:   qty,
			CouponCode: code,
		})
	}
	return nil
}

// Process clears the coupon's existing deal lines and, when the buy
// condition holds, injects its get items. Disabled deals only clear.
func (m *Matcher) Process(ctx context.Context, c *models.Cart, coupon *models.Coupon) error {
	Clear(c, coupon.Code)
	if !coupon.BXGX.Enabled {
		return nil
	}
	if !MatchBuyItems(c, coupon.BXGX.Buy) {
		return nil
	}
	return m.ApplyGetItems(ctx, c, coupon.Code, coupon.BXGX.Get)
}

// Requalify reprocesses every applied coupon with an enabled deal after the
// quantity of line key changed. Changes to deal lines themselves are ignored.
func (m *Matcher) Requalify(ctx context.Context, c *models.Cart, key string, coupons []*models.Coupon) error {
	if l, ok := c.Line(key); ok && l.Deal != nil {
		return nil
	}
	for _, coupon := range coupons {
		if !coupon.BXGX.Enabled || !c.HasCoupon(coupon.Code) {
			continue
		}
		if err := m.Process(ctx, c, coupon); err != nil {
			return err
		}
	}
	return nil
}

// RewritePrices sets the unit price of every line. Deal lines whose coupon is
// still applied and whose quantity has not grown past the deal quantity are
// charged the deal price; all other lines are charged their base price.
func RewritePrices(c *models.Cart) {
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.Deal != nil && c.HasCoupon(l.Deal.CouponCode) && l.Quantity <= l.Deal.Quantity {
			l.UnitPrice = l.Deal.Price
			continue
		}
		l.UnitPrice = l.BasePrice
	}
}

// Clear removes every deal line injected for code and returns how many were
// removed.
func Clear(c *models.Cart, code string) int {
	kept := c.Lines[:0]
	removed := 0
	for _, l := range c.Lines {
		if l.Deal != nil && models.NormalizeCode(l.Deal.CouponCode) == models.NormalizeCode(code) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	c.Lines = kept
	return removed
}
