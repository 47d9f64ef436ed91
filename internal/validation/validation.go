package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"swift-coupons/internal/models"
)

var (
	uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	idRegex   = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)
	codeRegex = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
)

const dateLayout = "2006-01-02"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateCoupon checks a coupon and all of its extension blobs.
func ValidateCoupon(c models.Coupon) error {
	if err := ValidateCode(c.Code, "code"); err != nil {
		return err
	}

	switch c.DiscountType {
	case models.DiscountPercent:
		if c.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return invalid("amount", "percent discount cannot exceed 100")
		}
	case models.DiscountFixedCart:
	default:
		return invalid("discount_type", "must be %q or %q", models.DiscountPercent, models.DiscountFixedCart)
	}
	if c.Amount.IsNegative() {
		return invalid("amount", "must be non-negative")
	}

	if err := ValidateQualifiers(c.Qualifiers); err != nil {
		return err
	}
	if err := ValidateDeal(c.BXGX); err != nil {
		return err
	}
	if err := ValidateSchedule(c.Scheduler); err != nil {
		return err
	}
	return ValidateURLApply(c.URLApply)
}

// ValidateCode checks a normalized coupon code.
func ValidateCode(code, field string) error {
	if code == "" {
		return invalid(field, "is required")
	}
	if !codeRegex.MatchString(code) {
		return invalid(field, "must be 1-64 lowercase letters, digits, '-' or '_'")
	}
	return nil
}

// ValidateQualifiers checks that groups and rules alternate with AND/OR
// switches and that no sequence starts or ends with a switch.
func ValidateQualifiers(cfg models.QualifierConfig) error {
	for i, g := range cfg.Data {
		field := fmt.Sprintf("qualifiers.data[%d]", i)
		if i%2 == 1 {
			if !g.IsSwitch() {
				return invalid(field, "expected a switch between groups")
			}
			if err := validateSwitchState(field, g.State); err != nil {
				return err
			}
			continue
		}
		if g.Type != models.NodeGroup {
			return invalid(field, "expected a group")
		}
		if err := validateRules(field, g.Rules); err != nil {
			return err
		}
	}
	if n := len(cfg.Data); n > 0 && n%2 == 0 {
		return invalid("qualifiers.data", "cannot end with a switch")
	}
	return nil
}

func validateRules(groupField string, rules []models.RuleNode) error {
	for i, r := range rules {
		field := fmt.Sprintf("%s.rules[%d]", groupField, i)
		if i%2 == 1 {
			if !r.IsSwitch() {
				return invalid(field, "expected a switch between rules")
			}
			if err := validateSwitchState(field, r.State); err != nil {
				return err
			}
			continue
		}
		if r.Type != models.NodeRule {
			return invalid(field, "expected a rule")
		}
		if SanitizeString(r.ID) == "" {
			return invalid(field+".id", "is required")
		}
	}
	if n := len(rules); n > 0 && n%2 == 0 {
		return invalid(groupField+".rules", "cannot end with a switch")
	}
	return nil
}

func validateSwitchState(field, state string) error {
	if state != models.SwitchAND && state != models.SwitchOR {
		return invalid(field+".state", "must be AND or OR")
	}
	return nil
}

// NormalizeQualifiers drops groups without rules together with the switch
// that joined them to their neighbour. Repeated and leading switches are
// dropped too.
func NormalizeQualifiers(cfg models.QualifierConfig) models.QualifierConfig {
	var out []models.GroupNode
	for _, g := range cfg.Data {
		if g.IsSwitch() {
			if n := len(out); n > 0 && !out[n-1].IsSwitch() {
				out = append(out, g)
			}
			continue
		}
		if len(g.Rules) == 0 {
			if n := len(out); n > 0 && out[n-1].IsSwitch() {
				out = out[:n-1]
			}
			continue
		}
		if len(out) == 0 || out[len(out)-1].IsSwitch() {
			out = append(out, g)
		}
	}
	// Trailing switch left behind by a dropped group
	for len(out) > 0 && out[len(out)-1].IsSwitch() {
		out = out[:len(out)-1]
	}
	cfg.Data = out
	return cfg
}

// ValidateDeal checks an enabled BXGX configuration.
func ValidateDeal(d models.DealConfig) error {
	if !d.Enabled {
		return nil
	}

	switch d.Buy.Match {
	case "", models.MatchAll, models.MatchAny:
	default:
		return invalid("bxgx.buy.match", "must be all or any")
	}
	if len(d.Buy.Items) == 0 {
		return invalid("bxgx.buy.items", "at least one item is required")
	}
	for i, item := range d.Buy.Items {
		if err := validateDealItem(fmt.Sprintf("bxgx.buy.items[%d]", i), item.Type, item.ID, item.Quantity); err != nil {
			return err
		}
	}

	switch d.Get.Apply {
	case models.ApplyAll, models.ApplyCheapest, models.ApplyMostExpensive:
	default:
		return invalid("bxgx.get.apply", "must be all, cheapest or most_expensive")
	}
	if len(d.Get.Items) == 0 {
		return invalid("bxgx.get.items", "at least one item is required")
	}
	for i, item := range d.Get.Items {
		field := fmt.Sprintf("bxgx.get.items[%d]", i)
		if err := validateDealItem(field, item.Type, item.ID, item.Quantity); err != nil {
			return err
		}
		if err := validateDiscount(field+".discount", item.Discount); err != nil {
			return err
		}
	}
	return nil
}

func validateDealItem(field, typ string, id models.ID, qty models.Quantity) error {
	if typ != models.ItemProduct && typ != models.ItemCategory {
		return invalid(field+".type", "must be product or category")
	}
	if SanitizeString(string(id)) == "" {
		return invalid(field+".id", "is required")
	}
	if qty <= 0 {
		return invalid(field+".quantity", "must be positive")
	}
	return nil
}

func validateDiscount(field string, d models.Discount) error {
	if d.Value.IsNegative() {
		return invalid(field+".value", "must be non-negative")
	}
	switch d.Type {
	case models.DealPercent:
		if d.Value.GreaterThan(decimal.NewFromInt(100)) {
			return invalid(field+".value", "percent cannot exceed 100")
		}
	case models.DealFixed, models.DealOverridePrice:
	default:
		return invalid(field+".type", "must be percent, fixed or override_price")
	}
	return nil
}

// ValidateSchedule checks schedule dates and weekday windows.
func ValidateSchedule(s models.ScheduleConfig) error {
	var start, end time.Time
	var err error
	if s.StartDate != nil {
		if start, err = ParseDate(*s.StartDate); err != nil {
			return invalid("scheduler.start_date", "must be YYYY-MM-DD")
		}
	}
	if s.EndDate != nil {
		if end, err = ParseDate(*s.EndDate); err != nil {
			return invalid("scheduler.end_date", "must be YYYY-MM-DD")
		}
	}
	if s.StartDate != nil && s.EndDate != nil && end.Before(start) {
		return invalid("scheduler.end_date", "must not be before start_date")
	}

	if len(s.Weekdays) > 7 {
		return invalid("scheduler.weekdays", "cannot have more than 7 days")
	}
	for i, w := range s.Weekdays {
		field := fmt.Sprintf("scheduler.weekdays[%d]", i)
		if w.From != nil && *w.From != "" && !validClock(*w.From) {
			return invalid(field+".from", "must be HH:MM or HH:MM:SS")
		}
		if w.To != nil && *w.To != "" && !validClock(*w.To) {
			return invalid(field+".to", "must be HH:MM or HH:MM:SS")
		}
	}
	return nil
}

// ParseDate parses YYYY-MM-DD, ignoring any time part.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}

func validClock(s string) bool {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ValidateURLApply checks the override code and redirect target.
func ValidateURLApply(u models.URLApplyConfig) error {
	if u.CodeOverride != "" {
		if err := ValidateCode(models.NormalizeCode(u.CodeOverride), "url_apply.code_override"); err != nil {
			return err
		}
	}
	if u.RedirectToURL != "" {
		parsed, err := url.Parse(u.RedirectToURL)
		if err != nil || (parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https") {
			return invalid("url_apply.redirect_to_url", "must be an http(s) URL or a path")
		}
	}
	return nil
}

// ValidateProduct checks a catalog product.
func ValidateProduct(p models.Product) error {
	if err := ValidateID(p.ID, "id"); err != nil {
		return err
	}
	if SanitizeString(p.Name) == "" {
		return invalid("name", "is required")
	}
	if p.Price.IsNegative() {
		return invalid("price", "must be non-negative")
	}
	if p.Weight < 0 {
		return invalid("weight", "must be non-negative")
	}
	return nil
}

// ValidateCustomer checks a customer record.
func ValidateCustomer(c models.Customer) error {
	if err := ValidateID(c.ID, "id"); err != nil {
		return err
	}
	if !strings.Contains(c.Email, "@") {
		return invalid("email", "must be a valid email address")
	}
	if c.RegisteredAt.IsZero() {
		return invalid("registered_at", "is required")
	}
	return nil
}

// ValidateOrder checks a historical order.
func ValidateOrder(o models.Order) error {
	if err := ValidateID(o.ID, "id"); err != nil {
		return err
	}
	if err := ValidateID(o.CustomerID, "customer_id"); err != nil {
		return err
	}
	if o.Total.IsNegative() {
		return invalid("total", "must be non-negative")
	}
	if o.PlacedAt.IsZero() {
		return invalid("placed_at", "is required")
	}
	maxFutureTime := time.Now().Add(1 * time.Hour)
	if o.PlacedAt.After(maxFutureTime) {
		return invalid("placed_at", "cannot be more than 1 hour in the future")
	}
	for i, item := range o.Items {
		field := fmt.Sprintf("items[%d]", i)
		if err := ValidateID(item.ProductID, field+".product_id"); err != nil {
			return err
		}
		if item.Quantity <= 0 {
			return invalid(field+".quantity", "must be positive")
		}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// ValidateID checks a catalog or customer identifier.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return invalid(fieldName, "is required")
	}
	if !idRegex.MatchString(SanitizeString(id)) {
		return invalid(fieldName, "must be 1-64 characters of letters, digits, '_', '.', ':' or '-'")
	}
	return nil
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return invalid(fieldName, "is required")
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return invalid(fieldName, "must be a valid UUID v4")
	}

	return nil
}
