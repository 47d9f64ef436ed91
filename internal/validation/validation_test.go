package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"swift-coupons/internal/models"
)

func validCoupon() models.Coupon {
	return models.Coupon{
		Code:         "summer10",
		DiscountType: models.DiscountPercent,
		Amount:       decimal.NewFromInt(10),
		Qualifiers: models.QualifierConfig{Enabled: true, Data: []models.GroupNode{
			{Type: models.NodeGroup, Rules: []models.RuleNode{
				{Type: models.NodeRule, ID: "Cart_Quantity"},
				{Type: models.NodeSwitch, State: models.SwitchOR},
				{Type: models.NodeRule, ID: "Cart_Subtotal"},
			}},
		}},
	}
}

func expectField(t *testing.T, err error, field string) {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError on %s, got %v", field, err)
	}
	if ve.Field != field {
		t.Errorf("Expected field %s, got %s (%s)", field, ve.Field, ve.Message)
	}
}

func TestValidateCoupon_Valid(t *testing.T) {
	if err := ValidateCoupon(validCoupon()); err != nil {
		t.Fatalf("Expected valid coupon, got %v", err)
	}
}

func TestValidateCoupon_Errors(t *testing.T) {
	c := validCoupon()
	c.Code = "Has Space"
	expectField(t, ValidateCoupon(c), "code")

	c = validCoupon()
	c.DiscountType = "bogus"
	expectField(t, ValidateCoupon(c), "discount_type")

	c = validCoupon()
	c.Amount = decimal.NewFromInt(120)
	expectField(t, ValidateCoupon(c), "amount")

	c = validCoupon()
	c.Qualifiers.Data[0].Rules[1].State = "XOR"
	expectField(t, ValidateCoupon(c), "qualifiers.data[0].rules[1].state")

	c = validCoupon()
	c.Qualifiers.Data = append(c.Qualifiers.Data, models.GroupNode{Type: models.NodeSwitch, State: models.SwitchAND})
	expectField(t, ValidateCoupon(c), "qualifiers.data")
}

func TestValidateDeal(t *testing.T) {
	d := models.DealConfig{
		Enabled: true,
		Buy:     models.BuyCondition{Match: models.MatchAll, Items: []models.BuyItem{{Type: models.ItemProduct, ID: "1", Quantity: 2}}},
		Get: models.GetReward{Apply: models.ApplyAll, Items: []models.GetItem{
			{Type: models.ItemProduct, ID: "2", Quantity: 1, Discount: models.Discount{Type: models.DealPercent, Value: decimal.NewFromInt(50)}},
		}},
	}
	if err := ValidateDeal(d); err != nil {
		t.Fatalf("Expected valid deal, got %v", err)
	}

	d.Get.Items[0].Discount.Type = "free"
	expectField(t, ValidateDeal(d), "bxgx.get.items[0].discount.type")

	d.Get.Items[0].Discount.Type = models.DealFixed
	d.Buy.Items[0].Quantity = 0
	expectField(t, ValidateDeal(d), "bxgx.buy.items[0].quantity")

	if err := ValidateDeal(models.DealConfig{Enabled: false}); err != nil {
		t.Errorf("Expected disabled deal to be valid, got %v", err)
	}
}

func TestValidateSchedule(t *testing.T) {
	start, end := "2025-03-10", "2025-03-01"
	expectField(t, ValidateSchedule(models.ScheduleConfig{StartDate: &start, EndDate: &end}), "scheduler.end_date")

	bad := "25:99"
	days := []models.WeekdayWindow{{Enabled: true, From: &bad}}
	expectField(t, ValidateSchedule(models.ScheduleConfig{Weekdays: days}), "scheduler.weekdays[0].from")

	end = "2025-03-31"
	if err := ValidateSchedule(models.ScheduleConfig{StartDate: &start, EndDate: &end}); err != nil {
		t.Errorf("Expected valid schedule, got %v", err)
	}
}

func TestValidateURLApply(t *testing.T) {
	expectField(t, ValidateURLApply(models.URLApplyConfig{RedirectToURL: "javascript:alert(1)"}), "url_apply.redirect_to_url")

	if err := ValidateURLApply(models.URLApplyConfig{CodeOverride: "VIP-Link", RedirectToURL: "/checkout"}); err != nil {
		t.Errorf("Expected valid URL config, got %v", err)
	}
}

func TestNormalizeQualifiers_DropsEmptyGroups(t *testing.T) {
	rule := models.RuleNode{Type: models.NodeRule, ID: "Cart_Quantity"}
	g := func(rules ...models.RuleNode) models.GroupNode {
		return models.GroupNode{Type: models.NodeGroup, Rules: rules}
	}
	sw := models.GroupNode{Type: models.NodeSwitch, State: models.SwitchOR}

	cfg := NormalizeQualifiers(models.QualifierConfig{Data: []models.GroupNode{g(), sw, g(rule), sw, g(), sw, g(rule)}})
	if len(cfg.Data) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(cfg.Data))
	}
	if err := ValidateQualifiers(cfg); err != nil {
		t.Errorf("Expected normalized config to validate, got %v", err)
	}
}

func TestNormalizeQualifiers_RepeatedSwitches(t *testing.T) {
	rule := models.RuleNode{Type: models.NodeRule, ID: "Cart_Quantity"}
	g := models.GroupNode{Type: models.NodeGroup, Rules: []models.RuleNode{rule}}
	or := models.GroupNode{Type: models.NodeSwitch, State: models.SwitchOR}
	and := models.GroupNode{Type: models.NodeSwitch, State: models.SwitchAND}

	cfg := NormalizeQualifiers(models.QualifierConfig{Data: []models.GroupNode{and, g, or, and, g, or}})
	if len(cfg.Data) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(cfg.Data))
	}
	if cfg.Data[1].State != models.SwitchOR {
		t.Errorf("Expected the first switch to be kept, got %s", cfg.Data[1].State)
	}
}

func TestValidateOrder(t *testing.T) {
	o := models.Order{ID: "o1", CustomerID: "c1", Total: decimal.NewFromInt(10), PlacedAt: time.Now().Add(-time.Hour),
		Items: []models.OrderItem{{ProductID: "p1", Quantity: 1, Total: decimal.NewFromInt(10)}}}
	if err := ValidateOrder(o); err != nil {
		t.Fatalf("Expected valid order, got %v", err)
	}

	o.PlacedAt = time.Now().Add(2 * time.Hour)
	expectField(t, ValidateOrder(o), "placed_at")
}

func TestValidateUUID(t *testing.T) {
	if err := ValidateUUID("6f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f", "cart_id"); err != nil {
		t.Errorf("Expected valid UUID, got %v", err)
	}
	expectField(t, ValidateUUID("not-a-uuid", "cart_id"), "cart_id")
}
