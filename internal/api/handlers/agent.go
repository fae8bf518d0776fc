package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/store"
)

type AgentHandler struct {
	agents domain.AgentStore
	claims domain.ClaimStore
}

func NewAgentHandler(agents domain.AgentStore, claims domain.ClaimStore) *AgentHandler {
	return &AgentHandler{agents: agents, claims: claims}
}

type createAgentRequest struct {
	Name              string `json:"name"`
	SettlementAccount string `json:"settlement_account"`
}

func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	agent := &domain.Agent{
		Name:              req.Name,
		SettlementAccount: req.SettlementAccount,
	}

	if err := h.agents.Create(r.Context(), agent); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	agent, err := h.agents.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// ListClaims returns every claim held by the agent, newest first.
func (h *AgentHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	claims, err := h.claims.ListByAgent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list claims")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}
