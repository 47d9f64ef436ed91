package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cart is a shopper's cart as kept by the session store.
type Cart struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customer_id,omitempty"`
	Lines          []CartLine `json:"lines"`
	AppliedCoupons []string   `json:"applied_coupons"`
	Dismissed      []string   `json:"dismissed_coupons,omitempty"`
	Shipping       Address    `json:"shipping"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CartLine is one line of the cart. BasePrice is the catalog price captured
// when the line was added; UnitPrice is what the line is charged at.
type CartLine struct {
	Key       string            `json:"key"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	BasePrice decimal.Decimal   `json:"base_price"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Product   Product           `json:"product"`
	Meta      map[string]string `json:"meta,omitempty"`
	Deal      *DealMeta         `json:"deal,omitempty"`
}

// DealMeta marks a line injected by a BXGX deal.
type DealMeta struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	CouponCode string          `json:"coupon_code"`
}

// Address is the shipping destination. State is optional.
type Address struct {
	Country string `json:"country"`
	State   string `json:"state,omitempty"`
}

// Line returns the line with the given key.
func (c *Cart) Line(key string) (*CartLine, bool) {
	for i := range c.Lines {
		if c.Lines[i].Key == key {
			return &c.Lines[i], true
		}
	}
	return nil, false
}

// AddLine adds quantity of product to the cart. A line with the same product
// and the same deal metadata absorbs the quantity instead of a new line being
// created. meta is only used for new lines.
func (c *Cart) AddLine(key string, product Product, quantity int, meta map[string]string, deal *DealMeta) *CartLine {
	for i := range c.Lines {
		l := &c.Lines[i]
		if l.ProductID == product.ID && sameDeal(l.Deal, deal) && sameMeta(l.Meta, meta) {
			l.Quantity += quantity
			return l
		}
	}
	c.Lines = append(c.Lines, CartLine{
		Key:       key,
		ProductID: product.ID,
		Quantity:  quantity,
		BasePrice: product.Price,
		UnitPrice: product.Price,
		Product:   product,
		Meta:      meta,
		Deal:      deal,
	})
	return &c.Lines[len(c.Lines)-1]
}

// RemoveLine removes the line with key and reports whether it existed.
func (c *Cart) RemoveLine(key string) bool {
	for i := range c.Lines {
		if c.Lines[i].Key == key {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// HasCoupon reports whether code is applied, case-insensitively.
func (c *Cart) HasCoupon(code string) bool {
	return indexFold(c.AppliedCoupons, code) >= 0
}

// AddCoupon records code as applied and clears any earlier dismissal. It is
// a no-op if already applied.
func (c *Cart) AddCoupon(code string) {
	if i := indexFold(c.Dismissed, code); i >= 0 {
		c.Dismissed = append(c.Dismissed[:i], c.Dismissed[i+1:]...)
	}
	if !c.HasCoupon(code) {
		c.AppliedCoupons = append(c.AppliedCoupons, code)
	}
}

// RemoveCoupon drops code from the applied list.
func (c *Cart) RemoveCoupon(code string) bool {
	i := indexFold(c.AppliedCoupons, code)
	if i < 0 {
		return false
	}
	c.AppliedCoupons = append(c.AppliedCoupons[:i], c.AppliedCoupons[i+1:]...)
	return true
}

// Dismiss records that the shopper removed code, so that it is not applied
// again automatically.
func (c *Cart) Dismiss(code string) {
	if indexFold(c.Dismissed, code) < 0 {
		c.Dismissed = append(c.Dismissed, code)
	}
}

// IsDismissed reports whether the shopper removed code from this cart.
func (c *Cart) IsDismissed(code string) bool {
	return indexFold(c.Dismissed, code) >= 0
}

// Subtotal is the sum of unit price times quantity over all lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Totals is the priced summary of a cart.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

func sameDeal(a, b *DealMeta) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Price.Equal(b.Price) && a.Quantity == b.Quantity && a.CouponCode == b.CouponCode
}

func sameMeta(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func indexFold(list []string, s string) int {
	for i, v := range list {
		if strings.EqualFold(v, s) {
			return i
		}
	}
	return -1
}
