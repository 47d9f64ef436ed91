package deal

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"swift-coupons/internal/models"
)

type fakeCatalog map[string]models.Product

func (f fakeCatalog) Product(ctx context.Context, id string) (models.Product, error) {
	p, ok := f[id]
	if !ok {
		return models.Product{}, ErrProductNotFound
	}
	return p, nil
}

func product(id string, price int64) models.Product {
	return models.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(price), Categories: []string{"tees"}}
}

func newTestMatcher(catalog fakeCatalog) *Matcher {
	n := 0
	return NewMatcher(catalog, func() string {
		n++
		return fmt.Sprintf("deal-%d", n)
	}, nil)
}

func cartWith(p models.Product, qty int) *models.Cart {
	c := &models.Cart{ID: "c1"}
	c.AddLine("l1", p, qty, nil, nil)
	return c
}

func TestMatchBuyItems_AllMode(t *testing.T) {
	buy := models.BuyCondition{
		Match: models.MatchAll,
		Items: []models.BuyItem{{Type: models.ItemProduct, ID: "1", Quantity: 2}},
	}

	if !MatchBuyItems(cartWith(product("1", 10), 2), buy) {
		t.Error("Expected buy condition to be satisfied at quantity 2")
	}
	if MatchBuyItems(cartWith(product("1", 10), 1), buy) {
		t.Error("Expected buy condition to fail at quantity 1")
	}
}

func TestMatchBuyItems_AnyAndCategory(t *testing.T) {
	c := cartWith(product("1", 10), 1)
	c.AddLine("l2", product("2", 10), 2, nil, nil)

	anyMode := models.BuyCondition{
		Match: models.MatchAny,
		Items: []models.BuyItem{
			{Type: models.ItemProduct, ID: "1", Quantity: 5},
			{Type: models.ItemProduct, ID: "2", Quantity: 2},
		},
	}
	if !MatchBuyItems(c, anyMode) {
		t.Error("Expected any-mode to match on the second item")
	}

	category := models.BuyCondition{Items: []models.BuyItem{{Type: models.ItemCategory, ID: "tees", Quantity: 3}}}
	if !MatchBuyItems(c, category) {
		t.Error("Expected category quantity 3 to match")
	}
	category.Items[0].Quantity = 4
	if MatchBuyItems(c, category) {
		t.Error("Expected category quantity 4 to fail")
	}

	if MatchBuyItems(c, models.BuyCondition{Match: models.MatchAll}) {
		t.Error("Expected empty buy condition to fail")
	}
}

func TestMatchBuyItems_IgnoresDealLines(t *testing.T) {
	c := &models.Cart{}
	c.AddLine("d", product("1", 10), 2, nil, &models.DealMeta{Price: decimal.Zero, Quantity: 2, CouponCode: "x"})

	buy := models.BuyCondition{Items: []models.BuyItem{{Type: models.ItemProduct, ID: "1", Quantity: 1}}}
	if MatchBuyItems(c, buy) {
		t.Error("Expected deal lines not to satisfy the buy condition")
	}
}

func TestDealPrice(t *testing.T) {
	price := decimal.NewFromInt(100)
	tests := []struct {
		discount models.Discount
		want     string
	}{
		{models.Discount{Type: models.DealPercent, Value: decimal.NewFromInt(25)}, "75"},
		{models.Discount{Type: models.DealFixed, Value: decimal.NewFromInt(20)}, "80"},
		{models.Discount{Type: models.DealOverridePrice, Value: decimal.NewFromInt(10)}, "10"},
		{models.Discount{Type: models.DealFixed, Value: decimal.NewFromInt(150)}, "0"},
	}

	for _, tt := range tests {
		got, ok := DealPrice(price, tt.discount)
		if !ok {
			t.Fatalf("%s: expected ok", tt.discount.Type)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("%s %s: expected %s, got %s", tt.discount.Type, tt.discount.Value, tt.want, got)
		}
	}

	if _, ok := DealPrice(price, models.Discount{Type: "bogus"}); ok {
		t.Error("Expected unknown discount type to fail")
	}
}

func bxgxCoupon() *models.Coupon {
	return &models.Coupon{
		Code: "bogo",
		BXGX: models.DealConfig{
			Enabled: true,
			Buy:     models.BuyCondition{Match: models.MatchAll, Items: []models.BuyItem{{Type: models.ItemProduct, ID: "1", Quantity: 2}}},
			Get: models.GetReward{Apply: models.ApplyAll, Items: []models.GetItem{
				{Type: models.ItemProduct, ID: "2", Quantity: 2, Discount: models.Discount{Type: models.DealPercent, Value: decimal.NewFromInt(50)}},
				{Type: models.ItemCategory, ID: "tees", Quantity: 1},
			}},
		},
	}
}

func TestProcess_InjectsAndDoesNotStack(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(fakeCatalog{"1": product("1", 30), "2": product("2", 40)})
	c := cartWith(product("1", 30), 2)
	coupon := bxgxCoupon()
	c.AddCoupon(coupon.Code)

	for i := 0; i < 2; i++ {
		if err := m.Process(ctx, c, coupon); err != nil {
			t.Fatalf("Failed to process deal: %v", err)
		}
	}

	if len(c.Lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(c.Lines))
	}
	deal := c.Lines[1]
	if deal.Deal == nil || deal.ProductID != "2" || deal.Quantity != 2 {
		t.Fatalf("Unexpected deal line %+v", deal)
	}
	if !deal.Deal.Price.Equal(decimal.NewFromInt(20)) || deal.Deal.CouponCode != "bogo" {
		t.Errorf("Unexpected deal metadata %+v", deal.Deal)
	}
}

func TestProcess_BuyConditionUnmet(t *testing.T) {
	m := newTestMatcher(fakeCatalog{"2": product("2", 40)})
	c := cartWith(product("1", 30), 1)

	if err := m.Process(context.Background(), c, bxgxCoupon()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(c.Lines) != 1 {
		t.Errorf("Expected no deal lines, got %d lines", len(c.Lines))
	}
}

func TestApplyGetItems_CheapestAndMostExpensive(t *testing.T) {
	catalog := fakeCatalog{"a": product("a", 15), "b": product("b", 5), "c": product("c", 25)}
	get := models.GetReward{Items: []models.GetItem{
		{Type: models.ItemProduct, ID: "a", Quantity: 1, Discount: models.Discount{Type: models.DealOverridePrice, Value: decimal.Zero}},
		{Type: models.ItemProduct, ID: "b", Quantity: 1, Discount: models.Discount{Type: models.DealOverridePrice, Value: decimal.Zero}},
		{Type: models.ItemProduct, ID: "c", Quantity: 1, Discount: models.Discount{Type: models.DealOverridePrice, Value: decimal.Zero}},
		{Type: models.ItemProduct, ID: "missing", Quantity: 1, Discount: models.Discount{Type: models.DealOverridePrice}},
	}}

	for apply, want := range map[string]string{models.ApplyCheapest: "b", models.ApplyMostExpensive: "c"} {
		get.Apply = apply
		c := &models.Cart{}
		if err := newTestMatcher(catalog).ApplyGetItems(context.Background(), c, "x", get); err != nil {
			t.Fatalf("%s: unexpected error: %v", apply, err)
		}
		if len(c.Lines) != 1 || c.Lines[0].ProductID != want {
			t.Errorf("%s: expected only product %s, got %+v", apply, want, c.Lines)
		}
	}
}

func TestRewritePrices_PartialDeal(t *testing.T) {
	c := &models.Cart{AppliedCoupons: []string{"bogo"}}
	c.AddLine("d", product("2", 40), 2, nil, &models.DealMeta{Price: decimal.NewFromInt(20), Quantity: 2, CouponCode: "bogo"})

	RewritePrices(c)
	if !c.Lines[0].UnitPrice.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Expected deal price 20 at quantity 2, got %s", c.Lines[0].UnitPrice)
	}

	c.Lines[0].Quantity = 3
	RewritePrices(c)
	if !c.Lines[0].UnitPrice.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected normal price 40 at quantity 3, got %s", c.Lines[0].UnitPrice)
	}

	c.Lines[0].Quantity = 2
	c.RemoveCoupon("bogo")
	RewritePrices(c)
	if !c.Lines[0].UnitPrice.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Expected normal price once coupon is removed, got %s", c.Lines[0].UnitPrice)
	}
}

func TestRequalify(t *testing.T) {
	ctx := context.Background()
	m := newTestMatcher(fakeCatalog{"2": product("2", 40)})
	coupon := bxgxCoupon()
	c := cartWith(product("1", 30), 2)
	c.AddCoupon(coupon.Code)
	if err := m.Process(ctx, c, coupon); err != nil {
		t.Fatalf("Failed to process deal: %v", err)
	}

	// Dropping below the buy quantity removes the deal lines.
	c.Lines[0].Quantity = 1
	if err := m.Requalify(ctx, c, "l1", []*models.Coupon{coupon}); err != nil {
		t.Fatalf("Failed to requalify: %v", err)
	}
	if len(c.Lines) != 1 {
		t.Fatalf("Expected deal lines cleared, got %d lines", len(c.Lines))
	}

	c.Lines[0].Quantity = 3
	if err := m.Requalify(ctx, c, "l1", []*models.Coupon{coupon}); err != nil {
		t.Fatalf("Failed to requalify: %v", err)
	}
	if len(c.Lines) != 2 {
		t.Fatalf("Expected deal line re-injected, got %d lines", len(c.Lines))
	}

	// Quantity changes on the deal line itself are ignored.
	c.Lines[1].Quantity = 5
	if err := m.Requalify(ctx, c, c.Lines[1].Key, []*models.Coupon{coupon}); err != nil {
		t.Fatalf("Failed to requalify: %v", err)
	}
	if c.Lines[1].Quantity != 5 {
		t.Error("Expected deal line to be left alone")
	}
}

func TestClear(t *testing.T) {
	c := cartWith(product("1", 30), 1)
	c.AddLine("d1", product("2", 40), 1, nil, &models.DealMeta{Price: decimal.Zero, Quantity: 1, CouponCode: "BOGO"})
	c.AddLine("d2", product("3", 40), 1, nil, &models.DealMeta{Price: decimal.Zero, Quantity: 1, CouponCode: "other"})

	if n := Clear(c, "bogo"); n != 1 {
		t.Errorf("Expected 1 line removed, got %d", n)
	}
	if len(c.Lines) != 2 || c.Lines[1].Key != "d2" {
		t.Errorf("Unexpected remaining lines %+v", c.Lines)
	}
}
