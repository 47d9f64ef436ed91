package features

import (
	"sort"
	"sync"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]*FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{
		flags: make(map[string]*FeatureFlag),
	}
}

// Defaults creates a manager with every predefined flag registered at its
// default state.
func Defaults() *Manager {
	m := NewManager()
	m.Register(FeatureWeekdaySchedule, false, "Enforce weekday and time-of-day scheduler windows")
	m.Register(FeatureAutoApply, true, "Apply auto-apply coupons on cart changes")
	m.Register(FeatureURLCoupons, true, "Apply coupons from shareable URLs")
	m.Register(FeatureBXGX, true, "Inject buy X get X deal lines")
	return m
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = &FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		Description: description,
	}
}

// IsEnabled checks if a feature flag is enabled.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, exists := m.flags[name]
	if !exists {
		return false
	}

	return flag.Enabled
}

// Set enables or disables a registered flag. Unknown flags are ignored.
func (m *Manager) Set(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, exists := m.flags[name]; exists {
		flag.Enabled = enabled
	}
}

// Enable enables a feature flag.
func (m *Manager) Enable(name string) { m.Set(name, true) }

// Disable disables a feature flag.
func (m *Manager) Disable(name string) { m.Set(name, false) }

// Apply sets flags from a name->enabled map, typically from config.
func (m *Manager) Apply(overrides map[string]bool) {
	for name, enabled := range overrides {
		m.Set(name, enabled)
	}
}

// List returns copies of all flags sorted by name.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]FeatureFlag, 0, len(m.flags))
	for _, v := range m.flags {
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Predefined feature flag names
const (
	// FeatureWeekdaySchedule enforces the scheduler's weekday windows
	FeatureWeekdaySchedule = "weekday_schedule"
	// FeatureAutoApply enables automatic coupon application
	FeatureAutoApply = "auto_apply"
	// FeatureURLCoupons enables the /coupon/{code} endpoint
	FeatureURLCoupons = "url_coupons"
	// FeatureBXGX enables deal line injection
	FeatureBXGX = "bxgx"
)
