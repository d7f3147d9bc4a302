package rates

import (
	"context"
	"math"
	"testing"
	"time"
)

func testConverter(t *testing.T, rates map[string]float64) *Converter {
	t.Helper()
	cache := NewCache(StaticProvider{Rates: rates}, time.Hour)
	return NewConverter(cache)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestToUSD(t *testing.T) {
	conv := testConverter(t, map[string]float64{"EUR": 0.8, "JPY": 150})
	ctx := context.Background()

	tests := []struct {
		name     string
		amount   float64
		currency string
		want     float64
	}{
		{"usd identity", 42, "USD", 42},
		{"empty currency identity", 42, "", 42},
		{"eur", 80, "EUR", 100},
		{"jpy", 300, "JPY", 2},
		{"missing rate passes through", 55, "XXX", 55},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conv.ToUSD(ctx, tt.amount, tt.currency); !almostEqual(got, tt.want) {
				t.Errorf("ToUSD(%v, %s) = %v, want %v", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	conv := testConverter(t, map[string]float64{"EUR": 0.8, "GBP": 0.5})
	ctx := context.Background()

	tests := []struct {
		name   string
		amount float64
		from   string
		to     string
		want   float64
	}{
		{"same currency identity", 42, "EUR", "EUR", 42},
		{"eur to usd", 80, "EUR", "USD", 100},
		{"usd to gbp", 100, "USD", "GBP", 50},
		{"eur to gbp via pivot", 80, "EUR", "GBP", 50},
		{"missing target degrades to usd", 80, "EUR", "XXX", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := conv.Convert(ctx, tt.amount, tt.from, tt.to); !almostEqual(got, tt.want) {
				t.Errorf("Convert(%v, %s, %s) = %v, want %v", tt.amount, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConvertRoundTrip(t *testing.T) {
	conv := testConverter(t, map[string]float64{"EUR": 0.92347, "GBP": 0.78812})
	ctx := context.Background()

	amount := 1234.56
	there := conv.Convert(ctx, amount, "EUR", "GBP")
	back := conv.Convert(ctx, there, "GBP", "EUR")
	if math.Abs(back-amount) > 1e-6 {
		t.Errorf("round trip EUR->GBP->EUR: %v -> %v", amount, back)
	}
}
