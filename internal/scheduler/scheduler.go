// Package scheduler vetoes coupons used outside their configured date range
// or weekday windows.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"swift-coupons/internal/models"
	"swift-coupons/internal/qualifier"
)

const (
	MsgOutsideDateRange = "This coupon is not valid because it is outside the scheduled date range."
	MsgOutsideWindow    = "This coupon is not valid at this time."
)

const dateLayout = "2006-01-02"

// Scheduler checks schedules in the store's time zone.
type Scheduler struct {
	loc             *time.Location
	enforceWeekdays func() bool
}

// New creates a scheduler. enforceWeekdays is consulted on every check so a
// feature flag can toggle weekday enforcement at runtime; nil disables it.
func New(loc *time.Location, enforceWeekdays func() bool) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if enforceWeekdays == nil {
		enforceWeekdays = func() bool { return false }
	}
	return &Scheduler{loc: loc, enforceWeekdays: enforceWeekdays}
}

// Check returns a *qualifier.QualificationError when now falls outside cfg.
// A disabled schedule never vetoes. Date bounds are inclusive and compared
// by calendar date; an unset bound leaves that side open.
func (s *Scheduler) Check(cfg models.ScheduleConfig, now time.Time) error {
	if !cfg.Enabled {
		return nil
	}

	local := now.In(s.loc)
	today := local.Format(dateLayout)

	if start, ok := s.date(cfg.StartDate); ok && today < start {
		return &qualifier.QualificationError{Message: MsgOutsideDateRange}
	}
	if end, ok := s.date(cfg.EndDate); ok && today > end {
		return &qualifier.QualificationError{Message: MsgOutsideDateRange}
	}

	if cfg.WeekdaysEnabled && s.enforceWeekdays() && !inWindow(cfg.Weekdays, local) {
		return &qualifier.QualificationError{Message: MsgOutsideWindow}
	}
	return nil
}

// date normalizes a configured date to YYYY-MM-DD. Values carrying a time
// part (e.g. "2025-01-01T00:00:00") are truncated to their date.
func (s *Scheduler) date(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	d := strings.TrimSpace(*v)
	if len(d) > len(dateLayout) {
		d = d[:len(dateLayout)]
	}
	if _, err := time.ParseInLocation(dateLayout, d, s.loc); err != nil {
		return "", false
	}
	return d, true
}

// WeekdayIndex maps a time.Weekday to the configuration index, 0 being
// Monday.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func inWindow(days []models.WeekdayWindow, local time.Time) bool {
	i := WeekdayIndex(local.Weekday())
	if i >= len(days) || !days[i].Enabled {
		return false
	}
	now := local.Format("15:04:05")
	if from, ok := clock(days[i].From); ok && now < from {
		return false
	}
	if to, ok := clock(days[i].To); ok && now > to {
		return false
	}
	return true
}

// clock normalizes HH:MM or HH:MM:SS to HH:MM:SS.
func clock(v *string) (string, bool) {
	if v == nil || *v == "" {
		return "", false
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, *v); err == nil {
			return t.Format("15:04:05"), true
		}
	}
	return "", false
}

// ValidateWindowTime reports whether v is a usable HH:MM[:SS] time.
func ValidateWindowTime(v string) error {
	if _, ok := clock(&v); !ok {
		return fmt.Errorf("invalid time %q", v)
	}
	return nil
}
