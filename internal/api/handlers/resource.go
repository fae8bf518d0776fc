package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/service"
	"github.com/valuenetwork/valueflow/internal/store"
)

type ResourceHandler struct {
	resources domain.ResourceStore
	equations domain.EquationStore
	rollup    *service.RollUpService
	shares    *service.ShareService
}

func NewResourceHandler(resources domain.ResourceStore, equations domain.EquationStore, rollup *service.RollUpService, shares *service.ShareService) *ResourceHandler {
	return &ResourceHandler{resources: resources, equations: equations, rollup: rollup, shares: shares}
}

type createResourceRequest struct {
	ResourceTypeID    uuid.UUID       `json:"resource_type_id"`
	Identifier        string          `json:"identifier"`
	Quantity          decimal.Decimal `json:"quantity"`
	ValuePerUnit      decimal.Decimal `json:"value_per_unit"`
	ValuePerUnitOfUse decimal.Decimal `json:"value_per_unit_of_use"`
	StageID           *uuid.UUID      `json:"stage_id"`
	ExchangeStageID   *uuid.UUID      `json:"exchange_stage_id"`
}

func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ResourceTypeID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "resource_type_id is required")
		return
	}

	res := &domain.Resource{
		ResourceTypeID:    req.ResourceTypeID,
		Identifier:        req.Identifier,
		Quantity:          req.Quantity,
		ValuePerUnit:      req.ValuePerUnit,
		ValuePerUnitOfUse: req.ValuePerUnitOfUse,
		StageID:           req.StageID,
		ExchangeStageID:   req.ExchangeStageID,
	}

	if err := h.resources.Create(r.Context(), res); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create resource")
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

func (h *ResourceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	res, err := h.resources.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get resource")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type rollUpRequest struct {
	EquationID *uuid.UUID `json:"equation_id"`
	// Persist defaults to true; set false to evaluate without memoizing.
	Persist *bool `json:"persist"`
}

// loadEquation resolves an optional equation id from a request body.
func (h *ResourceHandler) loadEquation(r *http.Request, id *uuid.UUID) (*domain.ValueEquation, error) {
	if id == nil {
		return nil, nil
	}
	return h.equations.GetByID(r.Context(), *id)
}

// RollUp recomputes and persists the resource's value per unit, walking its
// contribution graph.
func (h *ResourceHandler) RollUp(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	var req rollUpRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ve, err := h.loadEquation(r, req.EquationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "value equation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load value equation")
		return
	}

	var value decimal.Decimal
	if req.Persist != nil && !*req.Persist {
		value, _, err = h.rollup.ComputeValue(r.Context(), id, ve)
	} else {
		value, err = h.rollup.RollUp(r.Context(), id, ve)
	}
	if err != nil {
		if errors.Is(err, service.ErrResourceNotFound) {
			writeError(w, http.StatusNotFound, "resource not found")
			return
		}
		var insufficient *service.InsufficientDataError
		if errors.As(err, &insufficient) {
			writeError(w, http.StatusUnprocessableEntity, insufficient.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "roll-up failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id":    id,
		"value_per_unit": value,
	})
}

type incomeSharesRequest struct {
	Quantity   decimal.Decimal `json:"quantity"`
	EquationID *uuid.UUID      `json:"equation_id"`
}

// IncomeShares computes the per-event value shares behind a quantity of the
// resource without writing anything.
func (h *ResourceHandler) IncomeShares(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	var req incomeSharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ve, err := h.loadEquation(r, req.EquationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "value equation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load value equation")
		return
	}

	shares, traversal, err := h.shares.ComputeIncomeShares(r.Context(), id, ve, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNonPositiveQuantity):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrResourceNotFound):
			writeError(w, http.StatusNotFound, "resource not found")
		default:
			var insufficient *service.InsufficientDataError
			if errors.As(err, &insufficient) {
				writeError(w, http.StatusUnprocessableEntity, insufficient.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "income share computation failed")
		}
		return
	}

	total := decimal.Zero
	for i := range shares {
		total = total.Add(shares[i].Share)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id":    id,
		"quantity":       req.Quantity,
		"total":          total,
		"shares":         shares,
		"cycle_warnings": traversal.Cycles,
	})
}
