// Package summary rolls recurring payments up into monthly/yearly
// equivalent totals and per-category / per-source groups, normalized to
// USD and re-projectable into any display currency without recomputing.
package summary

import (
	"context"
	"sort"

	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/rates"
)

// Average-frequency factors: a weekly payment contributes 4.33 months'
// worth of itself per month, an every-4-weeks payment 1.08. These are
// stable budget approximations, not occurrence counts for a particular
// month.
var monthlyFactors = map[core.Frequency]float64{
	core.Monthly:        1,
	core.Weekly:         4.33,
	core.EveryFourWeeks: 1.08,
	core.Yearly:         1.0 / 12.0,
}

var yearlyFactors = map[core.Frequency]float64{
	core.Monthly:        12,
	core.Weekly:         52,
	core.EveryFourWeeks: 13,
	core.Yearly:         1,
}

// Group is one aggregation bucket (a category or a payment source).
// Totals are USD figures.
type Group struct {
	Key          string                  `json:"key"`
	Payments     []core.RecurringPayment `json:"payments"`
	Count        int                     `json:"count"`
	MonthlyTotal float64                 `json:"monthly_total"`
	YearlyTotal  float64                 `json:"yearly_total"`
}

// Totals is the full aggregate over a payment set, in USD. Project
// re-expresses it in a display currency.
type Totals struct {
	Currency     string  `json:"currency"`
	MonthlyTotal float64 `json:"monthly_total"`
	YearlyTotal  float64 `json:"yearly_total"`
	ByCategory   []Group `json:"by_category"`
	BySource     []Group `json:"by_source"`
}

// Aggregator computes currency-normalized rollups over payment sets.
type Aggregator struct {
	converter *rates.Converter
}

func NewAggregator(converter *rates.Converter) *Aggregator {
	return &Aggregator{converter: converter}
}

// MonthlyEquivalentUSD is a payment's average monthly contribution in
// USD. Unknown frequencies contribute nothing, matching the evaluator's
// silent-skip policy.
func (a *Aggregator) MonthlyEquivalentUSD(ctx context.Context, p core.RecurringPayment) float64 {
	factor, ok := monthlyFactors[p.Frequency]
	if !ok {
		return 0
	}
	return a.converter.ToUSD(ctx, p.Amount.Value(), p.Amount.Currency) * factor
}

// YearlyEquivalentUSD is a payment's average yearly contribution in USD.
func (a *Aggregator) YearlyEquivalentUSD(ctx context.Context, p core.RecurringPayment) float64 {
	factor, ok := yearlyFactors[p.Frequency]
	if !ok {
		return 0
	}
	return a.converter.ToUSD(ctx, p.Amount.Value(), p.Amount.Currency) * factor
}

// Build computes the USD aggregate: overall monthly/yearly equivalent
// totals plus groups keyed by category and by payment source, each group
// sorted by descending yearly total (ties keep insertion order).
func (a *Aggregator) Build(ctx context.Context, payments []core.RecurringPayment) Totals {
	t := Totals{Currency: rates.USD}

	byCategory := map[string]*Group{}
	bySource := map[string]*Group{}
	var categoryOrder, sourceOrder []string

	for _, p := range payments {
		monthly := a.MonthlyEquivalentUSD(ctx, p)
		yearly := a.YearlyEquivalentUSD(ctx, p)
		t.MonthlyTotal += monthly
		t.YearlyTotal += yearly

		catKey := p.CategoryOrDefault()
		if _, ok := byCategory[catKey]; !ok {
			byCategory[catKey] = &Group{Key: catKey}
			categoryOrder = append(categoryOrder, catKey)
		}
		addTo(byCategory[catKey], p, monthly, yearly)

		srcKey := p.SourceID
		if _, ok := bySource[srcKey]; !ok {
			bySource[srcKey] = &Group{Key: srcKey}
			sourceOrder = append(sourceOrder, srcKey)
		}
		addTo(bySource[srcKey], p, monthly, yearly)
	}

	t.ByCategory = collectGroups(byCategory, categoryOrder)
	t.BySource = collectGroups(bySource, sourceOrder)
	return t
}

func addTo(g *Group, p core.RecurringPayment, monthly, yearly float64) {
	g.Payments = append(g.Payments, p)
	g.Count++
	g.MonthlyTotal += monthly
	g.YearlyTotal += yearly
}

func collectGroups(groups map[string]*Group, order []string) []Group {
	out := make([]Group, 0, len(groups))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].YearlyTotal > out[j].YearlyTotal
	})
	return out
}

// Project re-expresses a USD aggregate in the given display currency.
// The underlying aggregate is untouched, so switching currencies never
// recomputes the rollup.
func (a *Aggregator) Project(ctx context.Context, t Totals, displayCurrency string) Totals {
	if displayCurrency == "" || displayCurrency == t.Currency {
		return t
	}
	out := Totals{
		Currency:     displayCurrency,
		MonthlyTotal: a.converter.Convert(ctx, t.MonthlyTotal, t.Currency, displayCurrency),
		YearlyTotal:  a.converter.Convert(ctx, t.YearlyTotal, t.Currency, displayCurrency),
		ByCategory:   a.projectGroups(ctx, t.ByCategory, t.Currency, displayCurrency),
		BySource:     a.projectGroups(ctx, t.BySource, t.Currency, displayCurrency),
	}
	return out
}

func (a *Aggregator) projectGroups(ctx context.Context, groups []Group, from, to string) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		out[i] = Group{
			Key:          g.Key,
			Payments:     g.Payments,
			Count:        g.Count,
			MonthlyTotal: a.converter.Convert(ctx, g.MonthlyTotal, from, to),
			YearlyTotal:  a.converter.Convert(ctx, g.YearlyTotal, from, to),
		}
	}
	return out
}
