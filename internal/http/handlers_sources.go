package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/events"
)

type sourceRequest struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

func (req sourceRequest) toDomain() (core.PaymentSource, error) {
	src := core.PaymentSource{
		Name:       sanitizeInput(req.Name),
		Type:       core.SourceType(strings.TrimSpace(req.Type)),
		Identifier: strings.TrimSpace(req.Identifier),
	}
	return src, src.Validate()
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sources, err := s.store.ListSources(r.Context())
		if err != nil {
			slog.ErrorContext(r.Context(), "List sources error", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list payment sources")
			return
		}
		if sources == nil {
			sources = []core.PaymentSource{}
		}
		writeJSON(w, http.StatusOK, sources)

	case http.MethodPost:
		var req sourceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		src, err := req.toDomain()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		created, err := s.store.CreateSource(r.Context(), src)
		if err != nil {
			slog.ErrorContext(r.Context(), "Create source error", "error", err, "name", src.Name)
			writeError(w, http.StatusInternalServerError, "failed to create payment source")
			return
		}
		s.invalidateDerivedViews()
		s.publishEvent(r, events.SourceCreated, created.ID)
		writeJSON(w, http.StatusCreated, created)

	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSourceByID(w http.ResponseWriter, r *http.Request) {
	id := pathID(r.URL.Path, "/api/sources/")
	if id == "" {
		writeError(w, http.StatusNotFound, "payment source not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		src, err := s.store.GetSource(r.Context(), id)
		if err != nil {
			s.writeStoreError(w, r, err, "payment source")
			return
		}
		writeJSON(w, http.StatusOK, src)

	case http.MethodPut:
		var req sourceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		src, err := req.toDomain()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		src.ID = id
		if err := s.store.UpdateSource(r.Context(), src); err != nil {
			s.writeStoreError(w, r, err, "payment source")
			return
		}
		s.invalidateDerivedViews()
		writeJSON(w, http.StatusOK, src)

	case http.MethodDelete:
		// Deleting a source that still backs payments is a conflict, not
		// a cascade.
		if err := s.store.DeleteSource(r.Context(), id); err != nil {
			s.writeStoreError(w, r, err, "payment source")
			return
		}
		s.invalidateDerivedViews()
		s.publishEvent(r, events.SourceDeleted, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
