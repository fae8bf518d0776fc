package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/store"
)

type EventHandler struct {
	events domain.EventStore
}

func NewEventHandler(events domain.EventStore) *EventHandler {
	return &EventHandler{events: events}
}

type createEventRequest struct {
	Kind           string           `json:"kind"`
	AgentID        uuid.UUID        `json:"agent_id"`
	ToAgentID      *uuid.UUID       `json:"to_agent_id"`
	ContextAgentID *uuid.UUID       `json:"context_agent_id"`
	ResourceID     *uuid.UUID       `json:"resource_id"`
	ResourceTypeID *uuid.UUID       `json:"resource_type_id"`
	ProcessID      *uuid.UUID       `json:"process_id"`
	ExchangeID     *uuid.UUID       `json:"exchange_id"`
	OrderID        *uuid.UUID       `json:"order_id"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Value          decimal.Decimal  `json:"value"`
	Price          decimal.Decimal  `json:"price"`
	IsContribution bool             `json:"is_contribution"`
	EventDate      *time.Time       `json:"event_date"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !domain.ValidEventKind(req.Kind) {
		writeError(w, http.StatusBadRequest, "invalid event kind")
		return
	}
	if req.AgentID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if req.Quantity.IsNegative() {
		writeError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	eventDate := time.Now().UTC()
	if req.EventDate != nil {
		eventDate = *req.EventDate
	}

	event := &domain.Event{
		Kind:           domain.EventKind(req.Kind),
		AgentID:        req.AgentID,
		ToAgentID:      req.ToAgentID,
		ContextAgentID: req.ContextAgentID,
		ResourceID:     req.ResourceID,
		ResourceTypeID: req.ResourceTypeID,
		ProcessID:      req.ProcessID,
		ExchangeID:     req.ExchangeID,
		OrderID:        req.OrderID,
		Quantity:       req.Quantity,
		Value:          req.Value,
		Price:          req.Price,
		IsContribution: req.IsContribution,
		EventDate:      eventDate,
	}

	if err := h.events.Create(r.Context(), event); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

func (h *EventHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, event)
}
