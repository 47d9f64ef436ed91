package qualifier

import (
	"math"
	"strings"

	"swift-coupons/internal/models"
)

func registerCartRules(r *Registry) {
	r.Register(KindCartQuantity, newCartQuantity)
	r.Register(KindCartSubtotal, newCartSubtotal)
	r.Register(KindCartWeight, newCartWeight)
	r.Register(KindCategoryQuantityInCart, newCategoryQuantityInCart)
	r.Register(KindProductQuantityInCart, newProductQuantityInCart)
	r.Register(KindProductStockAvailableInCart, newProductStockAvailableInCart)
	r.Register(KindCouponsAppliedInCart, newCouponsAppliedInCart)
	r.Register(KindCartItemMeta, newCartItemMeta)
	r.Register(KindProductMeta, newProductMeta)
	r.Register(KindCustomTaxonomyExistsInCart, newCustomTaxonomyExistsInCart)
	r.Register(KindShippingZoneAndRegion, newShippingZoneAndRegion)
}

// threshold is the common {logic, amount} parameter pair.
type threshold struct {
	Logic  string
	Amount float64
}

func parseThreshold(d Data, amountKey string) (threshold, error) {
	op, err := d.Operator(isCompareOp)
	if err != nil {
		return threshold{}, err
	}
	amount, err := d.Number(amountKey)
	if err != nil {
		return threshold{}, err
	}
	return threshold{Logic: op, Amount: amount}, nil
}

type cartQuantity struct{ threshold }

func newCartQuantity(d Data) (Rule, error) {
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return cartQuantity{t}, nil
}

func (r cartQuantity) Match(env *Env, vars Vars) bool {
	qty := 0
	for _, l := range env.Cart.Lines {
		qty += l.Quantity
	}
	vars.Set("diff", float64(qty)-r.Amount)
	return Compare(r.Logic, float64(qty), r.Amount)
}

type cartSubtotal struct{ threshold }

func newCartSubtotal(d Data) (Rule, error) {
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return cartSubtotal{t}, nil
}

func (r cartSubtotal) Match(env *Env, vars Vars) bool {
	subtotal := env.Cart.Subtotal().InexactFloat64()
	vars.Set("diff", env.Currency+scalarText(math.Abs(subtotal-r.Amount)))
	vars.Set("amount", env.Currency+scalarText(r.Amount))
	return Compare(r.Logic, subtotal, r.Amount)
}

type cartWeight struct{ threshold }

func newCartWeight(d Data) (Rule, error) {
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return cartWeight{t}, nil
}

func (r cartWeight) Match(env *Env, vars Vars) bool {
	weight := 0.0
	for _, l := range env.Cart.Lines {
		weight += l.Product.Weight * float64(l.Quantity)
	}
	vars.Set("diff", math.Abs(weight-r.Amount))
	return Compare(r.Logic, weight, r.Amount)
}

type categoryQuantityInCart struct {
	threshold
	Category string
}

func newCategoryQuantityInCart(d Data) (Rule, error) {
	category, err := d.Option("category")
	if err != nil {
		return nil, err
	}
	t, err := parseThreshold(d, "quantity")
	if err != nil {
		return nil, err
	}
	return categoryQuantityInCart{threshold: t, Category: category}, nil
}

func (r categoryQuantityInCart) Match(env *Env, vars Vars) bool {
	qty := 0
	for _, l := range env.Cart.Lines {
		if l.Product.InCategory(r.Category) {
			qty += l.Quantity
		}
	}
	vars.Set("diff", math.Abs(float64(qty)-r.Amount))
	return Compare(r.Logic, float64(qty), r.Amount)
}

type productQuantityInCart struct {
	threshold
	ProductID string
}

func newProductQuantityInCart(d Data) (Rule, error) {
	product, err := d.Option("product")
	if err != nil {
		return nil, err
	}
	t, err := parseThreshold(d, "quantity")
	if err != nil {
		return nil, err
	}
	return productQuantityInCart{threshold: t, ProductID: product}, nil
}

func (r productQuantityInCart) Match(env *Env, vars Vars) bool {
	qty := 0
	for _, l := range env.Cart.Lines {
		if l.ProductID == r.ProductID {
			qty += l.Quantity
		}
	}
	vars.Set("diff", math.Abs(float64(qty)-r.Amount))
	return Compare(r.Logic, float64(qty), r.Amount)
}

type productStockAvailableInCart struct {
	threshold
	ProductID string
}

func newProductStockAvailableInCart(d Data) (Rule, error) {
	product, err := d.Option("product")
	if err != nil {
		return nil, err
	}
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return productStockAvailableInCart{threshold: t, ProductID: product}, nil
}

// Match compares the stock of the product as snapshotted on its cart line.
// The rule does not match when the product is not in the cart.
func (r productStockAvailableInCart) Match(env *Env, vars Vars) bool {
	for _, l := range env.Cart.Lines {
		if l.ProductID == r.ProductID {
			vars.Set("stock", l.Product.Stock)
			return Compare(r.Logic, float64(l.Product.Stock), r.Amount)
		}
	}
	return false
}

// setRule is the {logic: has|not_has, <list>, match: any|all} shape.
type setRule struct {
	Logic    string
	Selected []string
	Mode     string
}

func parseSetRule(d Data, listKey string) (setRule, error) {
	op, err := d.Operator(isHasOp)
	if err != nil {
		return setRule{}, err
	}
	selected, err := d.Options(listKey)
	if err != nil {
		return setRule{}, err
	}
	// A missing match mode is unknown, like any other unrecognised value.
	mode, _ := d.String("match")
	return setRule{Logic: op, Selected: selected, Mode: mode}, nil
}

// test treats a missing or unknown match mode as "not found", so has fails
// and not_has passes.
func (s setRule) test(have []string) bool {
	is, _ := SetMatch(s.Mode, s.Selected, have)
	return applyHas(s.Logic, is)
}

type couponsAppliedInCart struct{ setRule }

func newCouponsAppliedInCart(d Data) (Rule, error) {
	s, err := parseSetRule(d, "coupons")
	if err != nil {
		return nil, err
	}
	for i, c := range s.Selected {
		s.Selected[i] = models.NormalizeCode(c)
	}
	return couponsAppliedInCart{s}, nil
}

func (r couponsAppliedInCart) Match(env *Env, _ Vars) bool {
	applied := make([]string, 0, len(env.Cart.AppliedCoupons))
	for _, c := range env.Cart.AppliedCoupons {
		applied = append(applied, models.NormalizeCode(c))
	}
	return r.test(applied)
}

// metaRule checks a meta key with either exists/not_exists or has/not_has.
type metaRule struct {
	Key   string
	Logic string
	Value string
}

func parseMetaRule(d Data) (metaRule, error) {
	key, err := d.String("key")
	if err != nil {
		return metaRule{}, err
	}
	op, err := d.Operator(func(op string) bool { return isHasOp(op) || isExistsOp(op) })
	if err != nil {
		return metaRule{}, err
	}
	value, _ := d.String("value")
	if isHasOp(op) && value == "" {
		return metaRule{}, d.missing("value")
	}
	return metaRule{Key: key, Logic: op, Value: value}, nil
}

// found reports whether meta satisfies the positive form of the operator.
func (m metaRule) found(meta map[string]string) bool {
	v, ok := meta[m.Key]
	if isExistsOp(m.Logic) {
		return ok
	}
	return ok && strings.Contains(v, m.Value)
}

func (m metaRule) result(found bool) bool {
	if isExistsOp(m.Logic) {
		return Exists(m.Logic, found)
	}
	return applyHas(m.Logic, found)
}

type cartItemMeta struct{ metaRule }

func newCartItemMeta(d Data) (Rule, error) {
	m, err := parseMetaRule(d)
	if err != nil {
		return nil, err
	}
	return cartItemMeta{m}, nil
}

func (r cartItemMeta) Match(env *Env, _ Vars) bool {
	found := false
	for _, l := range env.Cart.Lines {
		if r.found(l.Meta) {
			found = true
			break
		}
	}
	return r.result(found)
}

type productMeta struct {
	metaRule
	ProductID string
}

func newProductMeta(d Data) (Rule, error) {
	product, err := d.Option("product")
	if err != nil {
		return nil, err
	}
	m, err := parseMetaRule(d)
	if err != nil {
		return nil, err
	}
	return productMeta{metaRule: m, ProductID: product}, nil
}

func (r productMeta) Match(env *Env, _ Vars) bool {
	for _, l := range env.Cart.Lines {
		if l.ProductID == r.ProductID {
			return r.result(r.found(l.Product.Meta))
		}
	}
	return false
}

type customTaxonomyExistsInCart struct {
	Taxonomy string
	Terms    []string
	Logic    string
}

func newCustomTaxonomyExistsInCart(d Data) (Rule, error) {
	taxonomy, err := d.Option("taxonomy")
	if err != nil {
		return nil, err
	}
	terms, err := d.Options("terms")
	if err != nil {
		return nil, err
	}
	op, err := d.Operator(isExistsOp)
	if err != nil {
		return nil, err
	}
	return customTaxonomyExistsInCart{Taxonomy: taxonomy, Terms: terms, Logic: op}, nil
}

func (r customTaxonomyExistsInCart) Match(env *Env, _ Vars) bool {
	present := false
	for _, l := range env.Cart.Lines {
		if is, _ := SetMatch(MatchAny, r.Terms, l.Product.Terms[r.Taxonomy]); is {
			present = true
			break
		}
	}
	return Exists(r.Logic, present)
}

type shippingZoneAndRegion struct {
	Logic   string
	Regions []string
}

func newShippingZoneAndRegion(d Data) (Rule, error) {
	op, err := d.Operator(isHasOp)
	if err != nil {
		return nil, err
	}
	regions, err := d.Options("regions")
	if err != nil {
		return nil, err
	}
	for i, reg := range regions {
		regions[i] = strings.ToUpper(reg)
	}
	return shippingZoneAndRegion{Logic: op, Regions: regions}, nil
}

// Match accepts regions written as "CC" (whole country) or "CC:ST".
func (r shippingZoneAndRegion) Match(env *Env, _ Vars) bool {
	ship := env.Cart.Shipping
	country := strings.ToUpper(ship.Country)
	have := []string{}
	if country != "" {
		have = append(have, country)
		if ship.State != "" {
			have = append(have, country+":"+strings.ToUpper(ship.State))
		}
	}
	return r.test(have)
}

func (r shippingZoneAndRegion) test(have []string) bool {
	is, _ := SetMatch(MatchAny, r.Regions, have)
	return applyHas(r.Logic, is)
}
