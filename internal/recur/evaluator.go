// Package recur implements the recurrence math for recurring payments:
// deciding whether a payment falls on a given calendar date, and finding
// the next occurrence from an arbitrary day.
//
// Each frequency has its own rule type behind a registry, so new
// frequencies can be added without touching the evaluator.
package recur

import (
	"github.com/shadowlanes/recr-monkey/internal/core"
)

// OccurrenceRule decides whether a payment anchored at start recurs on
// target. Implementations assume both dates are midnight UTC.
type OccurrenceRule interface {
	Matches(start, target core.Date) bool
}

// MonthlyRule matches when the target shares the anchor's day of month.
// Deliberately no month-end clamping: a payment anchored on the 31st
// never matches months with fewer days.
type MonthlyRule struct{}

func (MonthlyRule) Matches(start, target core.Date) bool {
	return target.Day() == start.Day() && !target.Before(start.Time)
}

// YearlyRule matches when the target shares the anchor's day and month.
type YearlyRule struct{}

func (YearlyRule) Matches(start, target core.Date) bool {
	return target.Day() == start.Day() &&
		target.Month() == start.Month() &&
		!target.Before(start.Time)
}

// WeeklyRule matches dates on the 7-day lattice anchored at start.
type WeeklyRule struct{}

func (WeeklyRule) Matches(start, target core.Date) bool {
	return onLattice(start, target, 7)
}

// FourWeeklyRule matches dates on the 28-day lattice anchored at start.
type FourWeeklyRule struct{}

func (FourWeeklyRule) Matches(start, target core.Date) bool {
	return onLattice(start, target, 28)
}

// onLattice is the closed-form lattice test: elapsed whole days from the
// anchor must be non-negative and a multiple of period. Both dates are
// UTC midnights so the division is exact, including across year
// boundaries and leap days.
func onLattice(start, target core.Date, period int) bool {
	days := start.DaysUntil(target)
	return days >= 0 && days%period == 0
}

// occurrenceRules maps each frequency to its rule. Unknown frequencies
// have no rule and produce no occurrences.
var occurrenceRules = map[core.Frequency]OccurrenceRule{
	core.Weekly:         WeeklyRule{},
	core.Monthly:        MonthlyRule{},
	core.EveryFourWeeks: FourWeeklyRule{},
	core.Yearly:         YearlyRule{},
}

// RuleFor returns the occurrence rule for a frequency, reporting whether
// one is registered.
func RuleFor(frequency core.Frequency) (OccurrenceRule, bool) {
	rule, ok := occurrenceRules[frequency]
	return rule, ok
}

// RegisterRule registers a custom rule for a frequency, allowing
// extension without modifying the evaluator.
func RegisterRule(frequency core.Frequency, rule OccurrenceRule) {
	occurrenceRules[frequency] = rule
}

// OccurrencesOnDate returns the occurrence dates of a payment falling on
// target: zero or one for every supported frequency, returned as a slice
// to keep the contract uniform. An invalid or unknown frequency yields no
// occurrences rather than an error.
func OccurrencesOnDate(p core.RecurringPayment, target core.Date) []core.Date {
	start := p.StartDate
	if start.IsZero() {
		return nil
	}
	// Nothing can recur in months before the anchor's month.
	if start.Year() > target.Year() ||
		(start.Year() == target.Year() && start.Month() > target.Month()) {
		return nil
	}
	rule, ok := RuleFor(p.Frequency)
	if !ok {
		return nil
	}
	if !rule.Matches(start, target) {
		return nil
	}
	return []core.Date{target}
}
