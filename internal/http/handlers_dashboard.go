package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shadowlanes/recr-monkey/internal/calendar"
	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/recur"
)

func (s *Server) handleMonthCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	year, month := parseYearMonth(r)
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	key := fmt.Sprintf("%d-%d", year, month)
	if grid, ok := s.monthCache.Get(key); ok {
		writeJSON(w, http.StatusOK, grid)
		return
	}

	payments, sources, err := s.loadPaymentsAndSources(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load payments")
		return
	}

	grid := calendar.BuildMonthGrid(year, month, payments, sources)
	s.monthCache.Set(key, grid)
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) handleYearCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	year := parseIntQuery(r, "year", time.Now().Year())
	key := fmt.Sprintf("%d", year)
	if grids, ok := s.yearCache.Get(key); ok {
		writeJSON(w, http.StatusOK, grids)
		return
	}

	payments, sources, err := s.loadPaymentsAndSources(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load payments")
		return
	}

	grids := calendar.BuildYearGrid(year, payments, sources)
	s.yearCache.Set(key, grids)
	writeJSON(w, http.StatusOK, grids)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// The aggregate is computed and cached in USD once; currency switches
	// only re-project it.
	totals, ok := s.summaryCache.Get("usd")
	if !ok {
		payments, err := s.store.ListPayments(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "List payments error", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load payments")
			return
		}
		totals = s.aggregator.Build(r.Context(), payments)
		s.summaryCache.Set("usd", totals)
	}

	display := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if display == "" {
		preferred, err := s.store.DisplayCurrency(r.Context())
		if err != nil {
			slog.WarnContext(r.Context(), "Display currency lookup failed, using USD", "error", err)
			preferred = "USD"
		}
		display = preferred
	}

	writeJSON(w, http.StatusOK, s.aggregator.Project(r.Context(), totals, display))
}

// upcomingItem is one row of the upcoming-payments view, ordered by how
// soon the payment is due.
type upcomingItem struct {
	Payment      core.RecurringPayment `json:"payment"`
	Source       *core.PaymentSource   `json:"source,omitempty"`
	Date         core.Date             `json:"date"`
	DaysUntilDue int                   `json:"days_until_due"`
	Urgency      recur.Urgency         `json:"urgency"`
	Label        string                `json:"label"`
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	horizon := parseIntQuery(r, "days", 30)
	if horizon < 1 || horizon > 365 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	payments, sources, err := s.loadPaymentsAndSources(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load payments")
		return
	}

	idx := core.BuildSourceIndex(sources)
	today := core.DateOf(time.Now())

	items := []upcomingItem{}
	for _, p := range payments {
		next, ok := recur.NextOccurrence(p, today, horizon)
		if !ok {
			continue
		}
		days := today.DaysUntil(next)
		item := upcomingItem{
			Payment:      p,
			Date:         next,
			DaysUntilDue: days,
			Urgency:      recur.ClassifyUrgency(days),
			Label:        recur.DueLabel(days),
		}
		if src, ok := idx.Lookup(p.SourceID); ok {
			src := src
			item.Source = &src
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DaysUntilDue < items[j].DaysUntilDue
	})

	writeJSON(w, http.StatusOK, items)
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

func (s *Server) handleDisplayCurrency(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		code, err := s.store.DisplayCurrency(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "Display currency lookup error", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load display currency")
			return
		}
		writeJSON(w, http.StatusOK, currencyRequest{Currency: code})

	case http.MethodPut:
		var req currencyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		code := strings.ToUpper(strings.TrimSpace(req.Currency))
		if !validCurrencyCode(code) {
			writeError(w, http.StatusUnprocessableEntity, "currency must be a 3-letter code")
			return
		}
		if err := s.store.SetDisplayCurrency(r.Context(), code); err != nil {
			slog.ErrorContext(r.Context(), "Set display currency error", "error", err, "currency", code)
			writeError(w, http.StatusInternalServerError, "failed to save display currency")
			return
		}
		if err := s.publisher.PublishCurrencyChanged(r.Context(), code); err != nil {
			slog.WarnContext(r.Context(), "Event publish failed", "kind", "currency.changed", "error", err)
		}
		writeJSON(w, http.StatusOK, currencyRequest{Currency: code})

	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func validCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// loadPaymentsAndSources fetches the full payment and source sets the
// dashboard views are built from.
func (s *Server) loadPaymentsAndSources(r *http.Request) ([]core.RecurringPayment, []core.PaymentSource, error) {
	payments, err := s.store.ListPayments(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List payments error", "error", err)
		return nil, nil, err
	}
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List sources error", "error", err)
		return nil, nil, err
	}
	return payments, sources, nil
}
