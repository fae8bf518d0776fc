package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/store"
)

type ClaimHandler struct {
	claims domain.ClaimStore
}

func NewClaimHandler(claims domain.ClaimStore) *ClaimHandler {
	return &ClaimHandler{claims: claims}
}

func (h *ClaimHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	claim, err := h.claims.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get claim")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claim": claim,
		"state": claim.State(),
	})
}

// GetEvents returns the claim's adjustment ledger, oldest first.
func (h *ClaimHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	events, err := h.claims.ListClaimEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list claim events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"claim_events": events})
}
