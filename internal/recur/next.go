package recur

import (
	"fmt"

	"github.com/shadowlanes/recr-monkey/internal/core"
)

// Urgency classifies how soon an upcoming payment is due.
type Urgency string

const (
	UrgencyUrgent  Urgency = "urgent"  // due within 3 days
	UrgencyWarning Urgency = "warning" // due within 7 days
	UrgencyNormal  Urgency = "normal"
)

// step advances a date by one period of the payment's frequency.
// Monthly and yearly steps use calendar arithmetic, so a day-31 anchor
// normalizes forward through shorter months the same way the evaluator's
// no-clamp rule skips them.
func step(d core.Date, frequency core.Frequency) (core.Date, bool) {
	switch frequency {
	case core.Weekly:
		return core.DateOf(d.AddDate(0, 0, 7)), true
	case core.EveryFourWeeks:
		return core.DateOf(d.AddDate(0, 0, 28)), true
	case core.Monthly:
		return core.DateOf(d.AddDate(0, 1, 0)), true
	case core.Yearly:
		return core.DateOf(d.AddDate(1, 0, 0)), true
	}
	return core.Date{}, false
}

// NextOccurrence returns the next occurrence of a payment on or after
// today, provided it falls within horizonDays. A future start date is
// itself the next occurrence. The second return is false when no
// occurrence exists within the horizon or the frequency is unknown.
func NextOccurrence(p core.RecurringPayment, today core.Date, horizonDays int) (core.Date, bool) {
	start := p.StartDate
	if start.IsZero() || !p.Frequency.Valid() {
		return core.Date{}, false
	}

	next := start
	for next.Before(today.Time) {
		stepped, ok := step(next, p.Frequency)
		if !ok {
			return core.Date{}, false
		}
		next = stepped
	}

	if today.DaysUntil(next) > horizonDays {
		return core.Date{}, false
	}
	return next, true
}

// DaysUntilDue returns the whole days from today until the payment's next
// occurrence inside the horizon. The boolean is false when nothing is due
// within the horizon.
func DaysUntilDue(p core.RecurringPayment, today core.Date, horizonDays int) (int, bool) {
	next, ok := NextOccurrence(p, today, horizonDays)
	if !ok {
		return 0, false
	}
	return today.DaysUntil(next), true
}

// ClassifyUrgency maps days-until-due onto the urgency scale used by
// upcoming-payment views.
func ClassifyUrgency(days int) Urgency {
	switch {
	case days <= 3:
		return UrgencyUrgent
	case days <= 7:
		return UrgencyWarning
	default:
		return UrgencyNormal
	}
}

// DueLabel renders days-until-due as the human label shown next to an
// upcoming payment.
func DueLabel(days int) string {
	switch days {
	case 0:
		return "due today"
	case 1:
		return "due tomorrow"
	default:
		return fmt.Sprintf("due in %d days", days)
	}
}
