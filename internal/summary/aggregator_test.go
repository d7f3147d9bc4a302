package summary

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/rates"
)

func testAggregator(rateTable map[string]float64) *Aggregator {
	cache := rates.NewCache(rates.StaticProvider{Rates: rateTable}, time.Hour)
	return NewAggregator(rates.NewConverter(cache))
}

func usdPayment(id string, cents int64, frequency core.Frequency, category, sourceID string) core.RecurringPayment {
	return core.RecurringPayment{
		ID:        id,
		Name:      id,
		Amount:    core.Money{Cents: cents, Currency: "USD"},
		Frequency: frequency,
		SourceID:  sourceID,
		StartDate: core.NewDate(2024, 1, 1),
		Category:  category,
	}
}

func TestMonthlyEquivalentFactors(t *testing.T) {
	agg := testAggregator(nil)
	ctx := context.Background()

	tests := []struct {
		frequency core.Frequency
		want      float64
	}{
		{core.Monthly, 10},
		{core.Weekly, 43.3},
		{core.EveryFourWeeks, 10.8},
		{core.Yearly, 10.0 / 12.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			p := usdPayment("p", 1000, tt.frequency, "", "src-1")
			got := agg.MonthlyEquivalentUSD(ctx, p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MonthlyEquivalentUSD = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestYearlyEquivalentFactors(t *testing.T) {
	agg := testAggregator(nil)
	ctx := context.Background()

	tests := []struct {
		frequency core.Frequency
		want      float64
	}{
		{core.Monthly, 120},
		{core.Weekly, 520},
		{core.EveryFourWeeks, 130},
		{core.Yearly, 10},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			p := usdPayment("p", 1000, tt.frequency, "", "src-1")
			got := agg.YearlyEquivalentUSD(ctx, p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("YearlyEquivalentUSD = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnknownFrequencyContributesNothing(t *testing.T) {
	agg := testAggregator(nil)
	p := usdPayment("p", 1000, "fortnightly", "", "src-1")
	if got := agg.MonthlyEquivalentUSD(context.Background(), p); got != 0 {
		t.Errorf("unknown frequency monthly equivalent = %v, want 0", got)
	}
}

func TestBuildGroupsAndTotals(t *testing.T) {
	agg := testAggregator(map[string]float64{"EUR": 0.8})
	ctx := context.Background()

	payments := []core.RecurringPayment{
		usdPayment("rent", 120000, core.Monthly, "Housing", "bank"),
		usdPayment("netflix", 1500, core.Monthly, "Entertainment", "card"),
		{
			ID:        "spotify",
			Name:      "spotify",
			Amount:    core.Money{Cents: 800, Currency: "EUR"},
			Frequency: core.Monthly,
			SourceID:  "card",
			StartDate: core.NewDate(2024, 1, 1),
			Category:  "Entertainment",
		},
		usdPayment("untagged", 1000, core.Monthly, "", "bank"),
	}

	totals := agg.Build(ctx, payments)
	if totals.Currency != rates.USD {
		t.Fatalf("Currency = %s, want USD", totals.Currency)
	}

	// 1200 + 15 + (8 EUR -> 10 USD) + 10 = 1235
	if math.Abs(totals.MonthlyTotal-1235) > 1e-9 {
		t.Errorf("MonthlyTotal = %v, want 1235", totals.MonthlyTotal)
	}
	if math.Abs(totals.YearlyTotal-totals.MonthlyTotal*12) > 1e-6 {
		t.Errorf("YearlyTotal = %v, want 12x monthly", totals.YearlyTotal)
	}

	if len(totals.ByCategory) != 3 {
		t.Fatalf("categories = %d, want 3", len(totals.ByCategory))
	}
	// Sorted by descending yearly total: Housing first.
	if totals.ByCategory[0].Key != "Housing" {
		t.Errorf("first category = %s, want Housing", totals.ByCategory[0].Key)
	}
	if totals.ByCategory[1].Key != "Entertainment" || totals.ByCategory[1].Count != 2 {
		t.Errorf("second category = %s (count %d), want Entertainment with 2",
			totals.ByCategory[1].Key, totals.ByCategory[1].Count)
	}
	// Blank category lands in the default bucket.
	if totals.ByCategory[2].Key != core.DefaultCategory {
		t.Errorf("third category = %s, want %s", totals.ByCategory[2].Key, core.DefaultCategory)
	}

	if len(totals.BySource) != 2 {
		t.Fatalf("sources = %d, want 2", len(totals.BySource))
	}
	if totals.BySource[0].Key != "bank" {
		t.Errorf("first source = %s, want bank", totals.BySource[0].Key)
	}
}

func TestBuildEmpty(t *testing.T) {
	agg := testAggregator(nil)
	totals := agg.Build(context.Background(), nil)
	if totals.MonthlyTotal != 0 || totals.YearlyTotal != 0 {
		t.Errorf("empty totals = %v / %v, want zeros", totals.MonthlyTotal, totals.YearlyTotal)
	}
	if len(totals.ByCategory) != 0 || len(totals.BySource) != 0 {
		t.Error("empty build should produce no groups")
	}
}

func TestProjectReexpressesWithoutRecomputing(t *testing.T) {
	agg := testAggregator(map[string]float64{"EUR": 0.8})
	ctx := context.Background()

	payments := []core.RecurringPayment{
		usdPayment("rent", 100000, core.Monthly, "Housing", "bank"),
	}
	usd := agg.Build(ctx, payments)
	eur := agg.Project(ctx, usd, "EUR")

	if eur.Currency != "EUR" {
		t.Fatalf("projected currency = %s, want EUR", eur.Currency)
	}
	if math.Abs(eur.MonthlyTotal-800) > 1e-9 {
		t.Errorf("projected MonthlyTotal = %v, want 800", eur.MonthlyTotal)
	}
	if math.Abs(eur.ByCategory[0].MonthlyTotal-800) > 1e-9 {
		t.Errorf("projected group MonthlyTotal = %v, want 800", eur.ByCategory[0].MonthlyTotal)
	}
	// The USD aggregate is untouched.
	if usd.Currency != rates.USD || math.Abs(usd.MonthlyTotal-1000) > 1e-9 {
		t.Error("Project mutated the source aggregate")
	}

	// Projecting to the same currency is a no-op.
	same := agg.Project(ctx, usd, "USD")
	if same.MonthlyTotal != usd.MonthlyTotal {
		t.Error("Project to same currency changed totals")
	}
}
