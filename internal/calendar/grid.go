// Package calendar builds day/month/year occurrence grids for the
// dashboard views. Grids are pure functions of their inputs and safe to
// rebuild as the query window changes.
package calendar

import (
	"sort"
	"time"

	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/recur"
)

// DayCell is one slot of a month grid. Leading alignment cells carry a
// zero Date and an empty occurrence list so the first real day lines up
// with its weekday (Sunday-first).
type DayCell struct {
	Date        core.Date         `json:"date"`
	Occurrences []core.Occurrence `json:"occurrences"`
}

// Blank reports whether the cell is a leading alignment slot.
func (c DayCell) Blank() bool {
	return c.Date.IsZero()
}

// MonthGrid is the ordered cell sequence for one month.
type MonthGrid struct {
	Year  int       `json:"year"`
	Month int       `json:"month"`
	Cells []DayCell `json:"cells"`
}

// DayOccurrences resolves every occurrence of the given payments on a
// single date, each with its payment source attached when the source
// still exists. Occurrences are ordered by descending amount; ties keep
// the input payment order.
func DayOccurrences(date core.Date, payments []core.RecurringPayment, idx core.SourceIndex) []core.Occurrence {
	occurrences := []core.Occurrence{}
	for _, p := range payments {
		for _, d := range recur.OccurrencesOnDate(p, date) {
			occ := core.Occurrence{Date: d, Payment: p}
			if src, ok := idx.Lookup(p.SourceID); ok {
				src := src
				occ.Source = &src
			}
			occurrences = append(occurrences, occ)
		}
	}
	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].Payment.Amount.Cents > occurrences[j].Payment.Amount.Cents
	})
	return occurrences
}

// BuildMonthGrid builds the cell sequence for a month: leading blank
// cells up to the weekday of day 1, then one cell per calendar day with
// its resolved occurrences.
func BuildMonthGrid(year, month int, payments []core.RecurringPayment, sources []core.PaymentSource) MonthGrid {
	idx := core.BuildSourceIndex(sources)
	first := core.NewDate(year, month, 1)
	daysInMonth := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()

	cells := make([]DayCell, 0, int(first.Weekday())+daysInMonth)
	for i := 0; i < int(first.Weekday()); i++ {
		cells = append(cells, DayCell{Occurrences: []core.Occurrence{}})
	}
	for day := 1; day <= daysInMonth; day++ {
		date := core.NewDate(year, month, day)
		cells = append(cells, DayCell{
			Date:        date,
			Occurrences: DayOccurrences(date, payments, idx),
		})
	}

	return MonthGrid{Year: year, Month: month, Cells: cells}
}

// BuildYearGrid builds the twelve month grids of a year.
func BuildYearGrid(year int, payments []core.RecurringPayment, sources []core.PaymentSource) []MonthGrid {
	grids := make([]MonthGrid, 0, 12)
	for month := 1; month <= 12; month++ {
		grids = append(grids, BuildMonthGrid(year, month, payments, sources))
	}
	return grids
}
