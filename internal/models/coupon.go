package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Node types used by qualifier configuration.
const (
	NodeRule   = "rule"
	NodeGroup  = "group"
	NodeSwitch = "switch"
)

// Switch states.
const (
	SwitchAND = "AND"
	SwitchOR  = "OR"
)

// Native coupon discount types.
const (
	DiscountPercent   = "percent"
	DiscountFixedCart = "fixed_cart"
)

// NormalizeCode formats a coupon code the way codes are stored and compared.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Coupon is a native coupon record together with the extension blobs
// attached to it.
type Coupon struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	DiscountType string          `json:"discount_type"`
	Amount       decimal.Decimal `json:"amount"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`

	Qualifiers QualifierConfig `json:"qualifiers"`
	BXGX       DealConfig      `json:"bxgx"`
	Scheduler  ScheduleConfig  `json:"scheduler"`
	URLApply   URLApplyConfig  `json:"url_apply"`
	AutoApply  AutoApplyConfig `json:"auto_apply"`
}

// Settings holds per-node admin settings.
type Settings struct {
	ErrorMessage string `json:"error_message"`
}

// QualifierConfig is the top-level qualifier blob: alternating groups and
// switches.
type QualifierConfig struct {
	Enabled bool        `json:"enabled"`
	Data    []GroupNode `json:"data"`
}

// GroupNode is either a group of rules or a switch between two groups.
type GroupNode struct {
	Type     string
	Rules    []RuleNode
	Settings Settings
	State    string
}

type groupJSON struct {
	Type     string     `json:"type"`
	Rules    []RuleNode `json:"rules"`
	Settings Settings   `json:"settings"`
}

type switchJSON struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

func (g GroupNode) IsSwitch() bool { return g.Type == NodeSwitch }

func (g GroupNode) MarshalJSON() ([]byte, error) {
	if g.IsSwitch() {
		return json.Marshal(switchJSON{Type: g.Type, State: g.State})
	}
	return json.Marshal(groupJSON{Type: g.Type, Rules: g.Rules, Settings: g.Settings})
}

func (g *GroupNode) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type     string     `json:"type"`
		Rules    []RuleNode `json:"rules"`
		Settings Settings   `json:"settings"`
		State    string     `json:"state"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*g = GroupNode{Type: raw.Type, Rules: raw.Rules, Settings: raw.Settings, State: raw.State}
	return nil
}

// RuleNode is either a rule instance or a switch between two rules.
type RuleNode struct {
	Type     string
	ID       string
	Data     map[string]any
	Settings Settings
	State    string
}

type ruleJSON struct {
	Type     string         `json:"type"`
	ID       string         `json:"id"`
	Data     map[string]any `json:"data"`
	Settings Settings       `json:"settings"`
}

func (r RuleNode) IsSwitch() bool { return r.Type == NodeSwitch }

func (r RuleNode) MarshalJSON() ([]byte, error) {
	if r.IsSwitch() {
		return json.Marshal(switchJSON{Type: r.Type, State: r.State})
	}
	return json.Marshal(ruleJSON{Type: r.Type, ID: r.ID, Data: r.Data, Settings: r.Settings})
}

func (r *RuleNode) UnmarshalJSON(b []byte) error {
	var raw struct {
		Type     string         `json:"type"`
		ID       string         `json:"id"`
		Data     map[string]any `json:"data"`
		Settings Settings       `json:"settings"`
		State    string         `json:"state"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = RuleNode{Type: raw.Type, ID: raw.ID, Data: raw.Data, Settings: raw.Settings, State: raw.State}
	return nil
}

// Deal item types and modes.
const (
	ItemProduct  = "product"
	ItemCategory = "category"

	MatchAll = "all"
	MatchAny = "any"

	ApplyAll           = "all"
	ApplyCheapest      = "cheapest"
	ApplyMostExpensive = "most_expensive"

	DealPercent       = "percent"
	DealFixed         = "fixed"
	DealOverridePrice = "override_price"
)

// DealConfig is the Buy X Get X blob.
type DealConfig struct {
	Enabled bool         `json:"enabled"`
	Buy     BuyCondition `json:"buy"`
	Get     GetReward    `json:"get"`
}

type BuyCondition struct {
	Match string    `json:"match"`
	Items []BuyItem `json:"items"`
}

type BuyItem struct {
	Type     string   `json:"type"`
	ID       ID       `json:"id"`
	Quantity Quantity `json:"quantity"`
}

type GetReward struct {
	Apply string    `json:"apply"`
	Items []GetItem `json:"items"`
}

type GetItem struct {
	Type     string   `json:"type"`
	ID       ID       `json:"id"`
	Quantity Quantity `json:"quantity"`
	Discount Discount `json:"discount"`
}

type Discount struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// ScheduleConfig restricts when a coupon is valid. Dates are YYYY-MM-DD in
// the store time zone; weekday times are HH:MM:SS.
type ScheduleConfig struct {
	Enabled         bool            `json:"enabled"`
	StartDate       *string         `json:"start_date"`
	EndDate         *string         `json:"end_date"`
	WeekdaysEnabled bool            `json:"weekdays_enabled"`
	Weekdays        []WeekdayWindow `json:"weekdays"`
}

// WeekdayWindow is one day of the week, index 0 being Monday.
type WeekdayWindow struct {
	Enabled bool    `json:"enabled"`
	From    *string `json:"from"`
	To      *string `json:"to"`
}

// URLApplyConfig controls applying the coupon from /coupon/{code}.
type URLApplyConfig struct {
	Enabled              bool   `json:"enabled"`
	CodeOverride         string `json:"code_override"`
	RedirectToURL        string `json:"redirect_to_url"`
	RedirectBackToOrigin bool   `json:"redirect_back_to_origin"`
}

// AutoApplyConfig controls automatic application on cart changes.
type AutoApplyConfig struct {
	Enabled           bool `json:"enabled"`
	AllowUserToRemove bool `json:"allow_user_to_remove"`
}
