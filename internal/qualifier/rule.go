// Package qualifier evaluates coupon qualification rules: leaf predicates
// over cart and customer state combined into groups with AND/OR switches.
package qualifier

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"swift-coupons/internal/models"
)

var (
	// ErrUnknownRule is returned by Registry.Build for unregistered kinds.
	ErrUnknownRule = errors.New("qualifier: unknown rule")
	// ErrInvalidData is wrapped by factories when rule data is malformed.
	ErrInvalidData = errors.New("qualifier: invalid rule data")
)

// Kind identifies a rule implementation. Values match the ids stored in
// coupon configuration.
type Kind string

const (
	KindCartQuantity                 Kind = "Cart_Quantity"
	KindCartSubtotal                 Kind = "Cart_Subtotal"
	KindCartWeight                   Kind = "Cart_Weight"
	KindCategoryQuantityInCart       Kind = "Category_Quantity_In_Cart"
	KindProductQuantityInCart        Kind = "Product_Quantity_In_Cart"
	KindProductStockAvailableInCart  Kind = "Product_Stock_Available_In_Cart"
	KindCouponsAppliedInCart         Kind = "Coupons_Applied_In_Cart"
	KindCartItemMeta                 Kind = "Cart_Item_Meta"
	KindProductMeta                  Kind = "Product_Meta"
	KindCustomTaxonomyExistsInCart   Kind = "Custom_Taxonomy_Exists_In_Cart"
	KindCustomerLoggedStatus         Kind = "Customer_Logged_Status"
	KindCustomerUserRoles            Kind = "Customer_User_Roles"
	KindCustomerMeta                 Kind = "Customer_Meta"
	KindCustomerOrderCount           Kind = "Customer_Order_Count"
	KindCustomerTotalSpent           Kind = "Customer_Total_Spent"
	KindCustomerTotalSpentOnCategory Kind = "Customer_Total_Spent_On_A_Category"
	KindCustomerHasOrderedProducts   Kind = "Customer_Has_Ordered_Products_Before"
	KindTimeSinceCustomerRegistered  Kind = "Time_Since_Customer_Registered"
	KindTimeSinceCustomerLastOrder   Kind = "Time_Since_Customer_Last_Order"
	KindWithinHoursAfterLastOrder    Kind = "Within_Hours_After_Customer_Last_Order"
	KindShippingZoneAndRegion        Kind = "Shipping_Zone_And_Region"
)

// Env is the state a rule is evaluated against.
type Env struct {
	Cart     *models.Cart
	Shopper  models.Shopper
	Now      time.Time
	Currency string
}

// Rule is a configured predicate. Match may add template variables such as
// {diff} to vars.
type Rule interface {
	Match(env *Env, vars Vars) bool
}

// RuleFunc adapts a function to Rule.
type RuleFunc func(env *Env, vars Vars) bool

func (f RuleFunc) Match(env *Env, vars Vars) bool { return f(env, vars) }

// Factory builds a rule from its data, failing with ErrInvalidData when the
// data cannot be used.
type Factory func(data Data) (Rule, error)

// Registry maps rule kinds to factories. It is built once at startup and
// passed to evaluators.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// DefaultRegistry creates a registry holding every built-in rule.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerCartRules(r)
	registerCustomerRules(r)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind Kind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = f
}

// Build constructs the rule for kind from data.
func (r *Registry) Build(kind Kind, data map[string]any) (Rule, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, kind)
	}
	if data == nil {
		data = map[string]any{}
	}
	rule, err := f(Data(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return rule, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[kind]
	return ok
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
