// Package rates provides exchange-rate snapshots with a 24-hour
// read-through cache and USD-pivot currency conversion.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// USD is the pivot currency: every rate is units-of-currency-per-USD.
const USD = "USD"

// Snapshot is one fetched rate table with its validity window.
type Snapshot struct {
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetched_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Rate returns the units-per-USD rate for a currency code, reporting
// whether the snapshot carries it. The pivot itself is always 1.
func (s Snapshot) Rate(code string) (float64, bool) {
	if code == USD {
		return 1, true
	}
	r, ok := s.Rates[code]
	return r, ok
}

// ValidAt reports whether the snapshot is still fresh at the given time.
func (s Snapshot) ValidAt(now time.Time) bool {
	return len(s.Rates) > 0 && now.Before(s.ExpiresAt)
}

// IdentitySnapshot is the degenerate table served before any successful
// fetch: conversion through it is a pass-through.
func IdentitySnapshot() Snapshot {
	return Snapshot{Rates: map[string]float64{USD: 1}}
}

// Provider fetches the current rate table from an external feed.
type Provider interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// HTTPProvider fetches rates from a JSON endpoint shaped like
// {"base":"USD","rates":{"EUR":0.92,...}}.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint URL.
func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *HTTPProvider) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rates payload: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("decode rates payload: empty rate table")
	}
	if payload.Base != "" && payload.Base != USD {
		return nil, fmt.Errorf("decode rates payload: unsupported base %q", payload.Base)
	}
	payload.Rates[USD] = 1
	return payload.Rates, nil
}

// StaticProvider serves a fixed rate table (or a fixed error). Used in
// tests and as an offline fallback backend.
type StaticProvider struct {
	Rates map[string]float64
	Err   error
}

func (p StaticProvider) Fetch(ctx context.Context) (map[string]float64, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make(map[string]float64, len(p.Rates)+1)
	for k, v := range p.Rates {
		out[k] = v
	}
	out[USD] = 1
	return out, nil
}
