package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/store"
)

type ExchangeHandler struct {
	exchanges domain.ExchangeStore
	events    domain.EventStore
}

func NewExchangeHandler(exchanges domain.ExchangeStore, events domain.EventStore) *ExchangeHandler {
	return &ExchangeHandler{exchanges: exchanges, events: events}
}

type createExchangeRequest struct {
	Name           string     `json:"name"`
	ContextAgentID *uuid.UUID `json:"context_agent_id"`
	ExchangeDate   *time.Time `json:"exchange_date"`
}

func (h *ExchangeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	date := time.Now().UTC()
	if req.ExchangeDate != nil {
		date = *req.ExchangeDate
	}

	x := &domain.Exchange{
		Name:           req.Name,
		ContextAgentID: req.ContextAgentID,
		ExchangeDate:   date,
	}

	if err := h.exchanges.Create(r.Context(), x); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create exchange")
		return
	}

	writeJSON(w, http.StatusCreated, x)
}

func (h *ExchangeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exchange id")
		return
	}

	x, err := h.exchanges.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "exchange not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get exchange")
		return
	}

	writeJSON(w, http.StatusOK, x)
}

// GetEvents returns every event grouped under the exchange.
func (h *ExchangeHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid exchange id")
		return
	}

	events, err := h.events.ByExchange(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list exchange events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
