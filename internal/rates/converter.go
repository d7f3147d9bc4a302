package rates

import (
	"context"
	"log/slog"
)

// Converter normalizes amounts between currencies by pivoting through
// USD. Every degradation path is fail-soft: a missing rate logs a warning
// and passes the amount through unchanged, never an error.
type Converter struct {
	cache *Cache
}

func NewConverter(cache *Cache) *Converter {
	return &Converter{cache: cache}
}

// ToUSD converts an amount from its native currency into USD. Identity
// for USD itself and for unknown currencies (logged).
func (c *Converter) ToUSD(ctx context.Context, amount float64, currency string) float64 {
	if currency == "" || currency == USD {
		return amount
	}
	snap := c.cache.Snapshot(ctx)
	rate, ok := snap.Rate(currency)
	if !ok || rate == 0 {
		slog.WarnContext(ctx, "Missing exchange rate, returning amount unconverted",
			"currency", currency,
			"fetched_at", snap.FetchedAt)
		return amount
	}
	return amount / rate
}

// Convert converts between two arbitrary currencies through the USD
// pivot. Identity when the codes match; each missing leg degrades to the
// value computed so far.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	usd := c.ToUSD(ctx, amount, from)
	if to == "" || to == USD {
		return usd
	}
	snap := c.cache.Snapshot(ctx)
	rate, ok := snap.Rate(to)
	if !ok || rate == 0 {
		slog.WarnContext(ctx, "Missing exchange rate, returning amount unconverted",
			"currency", to,
			"fetched_at", snap.FetchedAt)
		return usd
	}
	return usd * rate
}
