package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shadowlanes/recr-monkey/internal/calendar"
	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/rates"
	"github.com/shadowlanes/recr-monkey/internal/storage"
	"github.com/shadowlanes/recr-monkey/internal/summary"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	sources  map[string]core.PaymentSource
	payments map[string]core.RecurringPayment
	currency string
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources:  map[string]core.PaymentSource{},
		payments: map[string]core.RecurringPayment{},
		currency: "USD",
	}
}

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeStore) CreateSource(_ context.Context, s core.PaymentSource) (core.PaymentSource, error) {
	if s.ID == "" {
		s.ID = f.id()
	}
	f.sources[s.ID] = s
	return s, nil
}

func (f *fakeStore) GetSource(_ context.Context, id string) (core.PaymentSource, error) {
	s, ok := f.sources[id]
	if !ok {
		return core.PaymentSource{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) ListSources(_ context.Context) ([]core.PaymentSource, error) {
	out := []core.PaymentSource{}
	for _, s := range f.sources {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) UpdateSource(_ context.Context, s core.PaymentSource) error {
	if _, ok := f.sources[s.ID]; !ok {
		return storage.ErrNotFound
	}
	f.sources[s.ID] = s
	return nil
}

func (f *fakeStore) SourceInUse(_ context.Context, id string) (bool, error) {
	for _, p := range f.payments {
		if p.SourceID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeleteSource(ctx context.Context, id string) error {
	if _, ok := f.sources[id]; !ok {
		return storage.ErrNotFound
	}
	inUse, _ := f.SourceInUse(ctx, id)
	if inUse {
		return storage.ErrSourceInUse
	}
	delete(f.sources, id)
	return nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p core.RecurringPayment) (core.RecurringPayment, error) {
	if p.ID == "" {
		p.ID = f.id()
	}
	p.Category = p.CategoryOrDefault()
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetPayment(_ context.Context, id string) (core.RecurringPayment, error) {
	p, ok := f.payments[id]
	if !ok {
		return core.RecurringPayment{}, storage.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListPayments(_ context.Context) ([]core.RecurringPayment, error) {
	out := []core.RecurringPayment{}
	for _, p := range f.payments {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpdatePayment(_ context.Context, p core.RecurringPayment) error {
	if _, ok := f.payments[p.ID]; !ok {
		return storage.ErrNotFound
	}
	f.payments[p.ID] = p
	return nil
}

func (f *fakeStore) DeletePayment(_ context.Context, id string) error {
	if _, ok := f.payments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.payments, id)
	return nil
}

func (f *fakeStore) DisplayCurrency(_ context.Context) (string, error) {
	return f.currency, nil
}

func (f *fakeStore) SetDisplayCurrency(_ context.Context, code string) error {
	f.currency = code
	return nil
}

func newTestServer(t *testing.T, store Store) *Server {
	t.Helper()
	cache := rates.NewCache(rates.StaticProvider{Rates: map[string]float64{"EUR": 0.8}}, time.Hour)
	converter := rates.NewConverter(cache)
	srv := NewServer(":0", store, summary.NewAggregator(converter), converter, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func doRequest(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func seedSource(t *testing.T, store *fakeStore) core.PaymentSource {
	t.Helper()
	src, _ := store.CreateSource(context.Background(), core.PaymentSource{
		Name: "Checking", Type: core.BankAccount, Identifier: "1234",
	})
	return src
}

func TestCreateAndGetPayment(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)

	rec := doRequest(srv, http.MethodPost, "/api/payments", map[string]string{
		"name":              "Netflix",
		"amount":            "15.99",
		"currency":          "USD",
		"frequency":         "monthly",
		"payment_source_id": src.ID,
		"start_date":        "2024-01-15",
		"category":          "Entertainment",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body %s", rec.Code, rec.Body)
	}

	var created core.RecurringPayment
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created payment: %v", err)
	}
	if created.Amount.Cents != 1599 || created.Frequency != core.Monthly {
		t.Errorf("created = %+v", created)
	}

	rec = doRequest(srv, http.MethodGet, "/api/payments/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
}

func TestCreatePaymentValidation(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)

	base := func() map[string]string {
		return map[string]string{
			"name":              "Netflix",
			"amount":            "15.99",
			"currency":          "USD",
			"frequency":         "monthly",
			"payment_source_id": src.ID,
			"start_date":        "2024-01-15",
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   int
	}{
		{"empty name", func(m map[string]string) { m["name"] = "" }, http.StatusUnprocessableEntity},
		{"bad amount", func(m map[string]string) { m["amount"] = "-5" }, http.StatusUnprocessableEntity},
		{"bad frequency", func(m map[string]string) { m["frequency"] = "daily" }, http.StatusUnprocessableEntity},
		{"bad start date", func(m map[string]string) { m["start_date"] = "15/01/2024" }, http.StatusUnprocessableEntity},
		{"unknown source", func(m map[string]string) { m["payment_source_id"] = "ghost" }, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := base()
			tt.mutate(body)
			rec := doRequest(srv, http.MethodPost, "/api/payments", body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestPaymentNotFound(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	rec := doRequest(srv, http.MethodGet, "/api/payments/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteSourceConflict(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)
	store.CreatePayment(context.Background(), core.RecurringPayment{
		Name: "Netflix", Amount: core.Money{Cents: 1599, Currency: "USD"},
		Frequency: core.Monthly, SourceID: src.ID, StartDate: core.NewDate(2024, 1, 15),
	})

	rec := doRequest(srv, http.MethodDelete, "/api/sources/"+src.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %s)", rec.Code, rec.Body)
	}
}

func TestCreateSourceValidation(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	rec := doRequest(srv, http.MethodPost, "/api/sources", map[string]string{
		"name": "Visa", "type": "credit_card", "identifier": "12ab",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/sources", map[string]string{
		"name": "Visa", "type": "credit_card", "identifier": "4242",
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 (body %s)", rec.Code, rec.Body)
	}
}

func TestMonthCalendarEndpoint(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)
	store.CreatePayment(context.Background(), core.RecurringPayment{
		Name: "Rent", Amount: core.Money{Cents: 120000, Currency: "USD"},
		Frequency: core.Monthly, SourceID: src.ID, StartDate: core.NewDate(2024, 1, 15),
	})

	rec := doRequest(srv, http.MethodGet, "/api/calendar/month?year=2025&month=6", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var grid calendar.MonthGrid
	if err := json.Unmarshal(rec.Body.Bytes(), &grid); err != nil {
		t.Fatalf("decode grid: %v", err)
	}
	if grid.Year != 2025 || grid.Month != 6 {
		t.Errorf("grid = %d-%d, want 2025-6", grid.Year, grid.Month)
	}

	found := false
	for _, cell := range grid.Cells {
		if !cell.Blank() && cell.Date.Day() == 15 && len(cell.Occurrences) == 1 {
			found = true
		}
	}
	if !found {
		t.Error("rent occurrence missing from June 15 cell")
	}

	rec = doRequest(srv, http.MethodGet, "/api/calendar/month?year=2025&month=13", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("month=13 status = %d, want 400", rec.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)
	store.CreatePayment(context.Background(), core.RecurringPayment{
		Name: "Rent", Amount: core.Money{Cents: 100000, Currency: "USD"},
		Frequency: core.Monthly, SourceID: src.ID, StartDate: core.NewDate(2024, 1, 15),
		Category: "Housing",
	})

	rec := doRequest(srv, http.MethodGet, "/api/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var totals summary.Totals
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if totals.Currency != "USD" || totals.MonthlyTotal != 1000 {
		t.Errorf("totals = %+v", totals)
	}

	// Explicit currency query re-projects.
	rec = doRequest(srv, http.MethodGet, "/api/summary?currency=EUR", nil)
	json.Unmarshal(rec.Body.Bytes(), &totals)
	if totals.Currency != "EUR" || totals.MonthlyTotal != 800 {
		t.Errorf("projected totals = %+v", totals)
	}
}

func TestUpcomingEndpoint(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)

	// Weekly payment anchored long ago is always due within 7 days.
	store.CreatePayment(context.Background(), core.RecurringPayment{
		Name: "Gym", Amount: core.Money{Cents: 3000, Currency: "USD"},
		Frequency: core.Weekly, SourceID: src.ID, StartDate: core.NewDate(2020, 1, 6),
	})

	rec := doRequest(srv, http.MethodGet, "/api/upcoming?days=30", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var items []upcomingItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].DaysUntilDue < 0 || items[0].DaysUntilDue > 7 {
		t.Errorf("DaysUntilDue = %d, want within a week", items[0].DaysUntilDue)
	}
	if items[0].Label == "" {
		t.Error("item missing due label")
	}

	rec = doRequest(srv, http.MethodGet, "/api/upcoming?days=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("days=0 status = %d, want 400", rec.Code)
	}
}

func TestDisplayCurrencyEndpoint(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)

	rec := doRequest(srv, http.MethodGet, "/api/settings/currency", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodPut, "/api/settings/currency", map[string]string{"currency": "eur"})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d (body %s)", rec.Code, rec.Body)
	}
	if store.currency != "EUR" {
		t.Errorf("persisted currency = %s, want EUR (uppercased)", store.currency)
	}

	rec = doRequest(srv, http.MethodPut, "/api/settings/currency", map[string]string{"currency": "dollars"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid code status = %d, want 422", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	rec := doRequest(srv, http.MethodDelete, "/api/payments", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow == "" {
		t.Error("405 response missing Allow header")
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	rec := doRequest(srv, http.MethodGet, "/api/payments", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
}

func TestWriteInvalidatesSummaryCache(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	src := seedSource(t, store)

	// Prime the cache.
	doRequest(srv, http.MethodGet, "/api/summary", nil)

	rec := doRequest(srv, http.MethodPost, "/api/payments", map[string]string{
		"name":              "Netflix",
		"amount":            "15.99",
		"currency":          "USD",
		"frequency":         "monthly",
		"payment_source_id": src.ID,
		"start_date":        "2024-01-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/api/summary", nil)
	var totals summary.Totals
	json.Unmarshal(rec.Body.Bytes(), &totals)
	if totals.MonthlyTotal != 15.99 {
		t.Errorf("MonthlyTotal after write = %v, want 15.99 (stale cache?)", totals.MonthlyTotal)
	}
}
