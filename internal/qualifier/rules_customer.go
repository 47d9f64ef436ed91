package qualifier

import (
	"fmt"
	"math"
	"time"
)

func registerCustomerRules(r *Registry) {
	r.Register(KindCustomerLoggedStatus, newCustomerLoggedStatus)
	r.Register(KindCustomerUserRoles, newCustomerUserRoles)
	r.Register(KindCustomerMeta, newCustomerMeta)
	r.Register(KindCustomerOrderCount, newCustomerOrderCount)
	r.Register(KindCustomerTotalSpent, newCustomerTotalSpent)
	r.Register(KindCustomerTotalSpentOnCategory, newCustomerTotalSpentOnCategory)
	r.Register(KindCustomerHasOrderedProducts, newCustomerHasOrderedProducts)
	r.Register(KindTimeSinceCustomerRegistered, newTimeSinceCustomerRegistered)
	r.Register(KindTimeSinceCustomerLastOrder, newTimeSinceCustomerLastOrder)
	r.Register(KindWithinHoursAfterLastOrder, newWithinHoursAfterLastOrder)
}

const (
	StatusLoggedIn = "logged_in"
	StatusGuest    = "guest"
)

type customerLoggedStatus struct{ Status string }

func newCustomerLoggedStatus(d Data) (Rule, error) {
	status, err := d.Option("status")
	if err != nil {
		return nil, err
	}
	if status != StatusLoggedIn && status != StatusGuest {
		return nil, fmt.Errorf("%w: unsupported status %q", ErrInvalidData, status)
	}
	return customerLoggedStatus{Status: status}, nil
}

func (r customerLoggedStatus) Match(env *Env, _ Vars) bool {
	if r.Status == StatusLoggedIn {
		return env.Shopper.LoggedIn()
	}
	return !env.Shopper.LoggedIn()
}

type customerUserRoles struct{ setRule }

func newCustomerUserRoles(d Data) (Rule, error) {
	s, err := parseSetRule(d, "user_roles")
	if err != nil {
		return nil, err
	}
	return customerUserRoles{s}, nil
}

func (r customerUserRoles) Match(env *Env, _ Vars) bool {
	var roles []string
	if env.Shopper.Customer != nil {
		roles = env.Shopper.Customer.Roles
	}
	return r.test(roles)
}

type customerMeta struct{ metaRule }

func newCustomerMeta(d Data) (Rule, error) {
	m, err := parseMetaRule(d)
	if err != nil {
		return nil, err
	}
	return customerMeta{m}, nil
}

// Match never passes for guests, whatever the operator.
func (r customerMeta) Match(env *Env, _ Vars) bool {
	if env.Shopper.Customer == nil {
		return false
	}
	return r.result(r.found(env.Shopper.Customer.Meta))
}

type customerOrderCount struct{ threshold }

func newCustomerOrderCount(d Data) (Rule, error) {
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return customerOrderCount{t}, nil
}

func (r customerOrderCount) Match(env *Env, vars Vars) bool {
	count := float64(env.Shopper.History.OrderCount)
	vars.Set("diff", math.Abs(count-r.Amount))
	return Compare(r.Logic, count, r.Amount)
}

type customerTotalSpent struct{ threshold }

func newCustomerTotalSpent(d Data) (Rule, error) {
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return customerTotalSpent{t}, nil
}

func (r customerTotalSpent) Match(env *Env, vars Vars) bool {
	spent := env.Shopper.History.TotalSpent.InexactFloat64()
	vars.Set("diff", env.Currency+scalarText(math.Abs(spent-r.Amount)))
	vars.Set("amount", env.Currency+scalarText(r.Amount))
	return Compare(r.Logic, spent, r.Amount)
}

type customerTotalSpentOnCategory struct {
	threshold
	Category string
}

func newCustomerTotalSpentOnCategory(d Data) (Rule, error) {
	category, err := d.Option("category")
	if err != nil {
		return nil, err
	}
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return nil, err
	}
	return customerTotalSpentOnCategory{threshold: t, Category: category}, nil
}

func (r customerTotalSpentOnCategory) Match(env *Env, vars Vars) bool {
	spent := env.Shopper.History.SpentByCategory[r.Category].InexactFloat64()
	vars.Set("diff", env.Currency+scalarText(math.Abs(spent-r.Amount)))
	return Compare(r.Logic, spent, r.Amount)
}

type customerHasOrderedProducts struct{ setRule }

func newCustomerHasOrderedProducts(d Data) (Rule, error) {
	s, err := parseSetRule(d, "products")
	if err != nil {
		return nil, err
	}
	return customerHasOrderedProducts{s}, nil
}

func (r customerHasOrderedProducts) Match(env *Env, _ Vars) bool {
	ordered := make([]string, 0, len(env.Shopper.History.OrderedProducts))
	for id := range env.Shopper.History.OrderedProducts {
		ordered = append(ordered, id)
	}
	return r.test(ordered)
}

// Time units accepted by the elapsed-time rules. A month is 30 days.
const (
	UnitHours  = "hours"
	UnitDays   = "days"
	UnitWeeks  = "weeks"
	UnitMonths = "months"
)

func unitDuration(unit string) (time.Duration, bool) {
	switch unit {
	case UnitHours:
		return time.Hour, true
	case UnitDays:
		return 24 * time.Hour, true
	case UnitWeeks:
		return 7 * 24 * time.Hour, true
	case UnitMonths:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

type elapsed struct {
	threshold
	Unit time.Duration
}

func parseElapsed(d Data) (elapsed, error) {
	t, err := parseThreshold(d, "amount")
	if err != nil {
		return elapsed{}, err
	}
	name, err := d.Option("unit")
	if err != nil {
		return elapsed{}, err
	}
	unit, ok := unitDuration(name)
	if !ok {
		return elapsed{}, fmt.Errorf("%w: unsupported unit %q", ErrInvalidData, name)
	}
	return elapsed{threshold: t, Unit: unit}, nil
}

func (e elapsed) test(now, since time.Time, vars Vars) bool {
	n := now.Sub(since).Hours() / e.Unit.Hours()
	vars.Set("elapsed", math.Floor(n))
	return Compare(e.Logic, n, e.Amount)
}

type timeSinceCustomerRegistered struct{ elapsed }

func newTimeSinceCustomerRegistered(d Data) (Rule, error) {
	e, err := parseElapsed(d)
	if err != nil {
		return nil, err
	}
	return timeSinceCustomerRegistered{e}, nil
}

func (r timeSinceCustomerRegistered) Match(env *Env, vars Vars) bool {
	c := env.Shopper.Customer
	if c == nil || c.RegisteredAt.IsZero() {
		return false
	}
	return r.test(env.Now, c.RegisteredAt, vars)
}

type timeSinceCustomerLastOrder struct{ elapsed }

func newTimeSinceCustomerLastOrder(d Data) (Rule, error) {
	e, err := parseElapsed(d)
	if err != nil {
		return nil, err
	}
	return timeSinceCustomerLastOrder{e}, nil
}

func (r timeSinceCustomerLastOrder) Match(env *Env, vars Vars) bool {
	last := env.Shopper.History.LastOrderAt
	if last == nil {
		return false
	}
	return r.test(env.Now, *last, vars)
}

type withinHoursAfterLastOrder struct{ Hours float64 }

func newWithinHoursAfterLastOrder(d Data) (Rule, error) {
	hours, err := d.Number("hours")
	if err != nil {
		return nil, err
	}
	return withinHoursAfterLastOrder{Hours: hours}, nil
}

func (r withinHoursAfterLastOrder) Match(env *Env, _ Vars) bool {
	last := env.Shopper.History.LastOrderAt
	if last == nil {
		return false
	}
	since := env.Now.Sub(*last)
	return since >= 0 && since.Hours() <= r.Hours
}
