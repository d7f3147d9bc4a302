package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/events"
	"github.com/shadowlanes/recr-monkey/internal/storage"
)

// paymentRequest is the write payload for recurring payments. Amount is
// a decimal string so clients never send floats for money.
type paymentRequest struct {
	Name      string `json:"name"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Frequency string `json:"frequency"`
	SourceID  string `json:"payment_source_id"`
	StartDate string `json:"start_date"`
	Category  string `json:"category"`
}

func (req paymentRequest) toDomain() (core.RecurringPayment, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.RecurringPayment{}, err
	}
	start, err := core.ParseDate(strings.TrimSpace(req.StartDate))
	if err != nil {
		return core.RecurringPayment{}, core.ErrInvalidStartDate
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	p := core.RecurringPayment{
		Name:      sanitizeInput(req.Name),
		Amount:    core.Money{Cents: cents, Currency: currency},
		Frequency: core.Frequency(strings.TrimSpace(req.Frequency)),
		SourceID:  strings.TrimSpace(req.SourceID),
		StartDate: start,
		Category:  sanitizeInput(req.Category),
	}
	return p, p.Validate()
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		payments, err := s.store.ListPayments(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "List payments error", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list payments")
			return
		}
		if payments == nil {
			payments = []core.RecurringPayment{}
		}
		writeJSON(w, http.StatusOK, payments)

	case http.MethodPost:
		var req paymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		p, err := req.toDomain()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if _, err := s.store.GetSource(r.Context(), p.SourceID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusUnprocessableEntity, "unknown payment source")
				return
			}
			slog.ErrorContext(r.Context(), "Source lookup error", "error", err, "source_id", p.SourceID)
			writeError(w, http.StatusInternalServerError, "failed to verify payment source")
			return
		}

		created, err := s.store.CreatePayment(r.Context(), p)
		if err != nil {
			slog.ErrorContext(r.Context(), "Create payment error", "error", err, "name", p.Name)
			writeError(w, http.StatusInternalServerError, "failed to create payment")
			return
		}
		s.invalidateDerivedViews()
		s.publishEvent(r, events.PaymentCreated, created.ID)
		writeJSON(w, http.StatusCreated, created)

	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handlePaymentByID(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/payments/")
	if id == "" {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.store.GetPayment(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, r, err, "payment")
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodPut:
		var req paymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		p, err := req.toDomain()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		p.ID = id
		if err := s.store.UpdatePayment(r.Context(), p); err != nil {
			s.writeStoreError(w, r, err, "payment")
			return
		}
		s.invalidateDerivedViews()
		s.publishEvent(r, events.PaymentUpdated, id)
		writeJSON(w, http.StatusOK, p)

	case http.MethodDelete:
		if err := s.store.DeletePayment(r.Context(), id); err != nil {
			s.writeStoreError(w, r, err, "payment")
			return
		}
		s.invalidateDerivedViews()
		s.publishEvent(r, events.PaymentDeleted, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeStoreError maps repository errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, entity string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, entity+" not found")
	case errors.Is(err, storage.ErrSourceInUse):
		writeError(w, http.StatusConflict, "payment source is still used by recurring payments")
	default:
		slog.ErrorContext(r.Context(), "Store error", "error", err, "entity", entity)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// publishEvent emits a lifecycle notification, logging rather than
// failing the request when the broker is unavailable.
func (s *Server) publishEvent(r *http.Request, kind, id string) {
	if err := s.publisher.PublishPaymentEvent(r.Context(), kind, id); err != nil {
		slog.WarnContext(r.Context(), "Event publish failed", "kind", kind, "id", id, "error", err)
	}
}
