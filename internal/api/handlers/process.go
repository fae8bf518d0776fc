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

type ProcessHandler struct {
	processes domain.ProcessStore
	events    domain.EventStore
}

func NewProcessHandler(processes domain.ProcessStore, events domain.EventStore) *ProcessHandler {
	return &ProcessHandler{processes: processes, events: events}
}

type createProcessRequest struct {
	Name           string     `json:"name"`
	ContextAgentID uuid.UUID  `json:"context_agent_id"`
	ProcessTypeID  *uuid.UUID `json:"process_type_id"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
}

func (h *ProcessHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ContextAgentID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "context_agent_id is required")
		return
	}

	start := time.Now().UTC()
	if req.StartDate != nil {
		start = *req.StartDate
	}

	p := &domain.Process{
		Name:           req.Name,
		ContextAgentID: req.ContextAgentID,
		ProcessTypeID:  req.ProcessTypeID,
		StartDate:      start,
		EndDate:        req.EndDate,
	}

	if err := h.processes.Create(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create process")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *ProcessHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid process id")
		return
	}

	p, err := h.processes.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "process not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get process")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetEvents returns the process's input and output events.
func (h *ProcessHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid process id")
		return
	}

	inputs, err := h.events.ProcessInputs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list process inputs")
		return
	}

	outputs, err := h.events.ProcessOutputs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list process outputs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"inputs":  inputs,
		"outputs": outputs,
	})
}
