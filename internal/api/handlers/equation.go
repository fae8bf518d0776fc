package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/expr"
	"github.com/valuenetwork/valueflow/internal/service"
	"github.com/valuenetwork/valueflow/internal/store"
)

type EquationHandler struct {
	equations    domain.EquationStore
	distribution *service.DistributionService
}

func NewEquationHandler(equations domain.EquationStore, distribution *service.DistributionService) *EquationHandler {
	return &EquationHandler{equations: equations, distribution: distribution}
}

type createRuleRequest struct {
	EventKind      string     `json:"event_kind"`
	ResourceTypeID *uuid.UUID `json:"resource_type_id"`
	ClaimRuleType  string     `json:"claim_rule_type"`
	ClaimEquation  string     `json:"claim_equation"`
}

type createBucketRequest struct {
	Sequence            int                 `json:"sequence"`
	Name                string              `json:"name"`
	Percentage          decimal.Decimal     `json:"percentage"`
	DistributionAgentID *uuid.UUID          `json:"distribution_agent_id"`
	FilterMethod        string              `json:"filter_method"`
	PercentageBehavior  string              `json:"percentage_behavior"`
	Rules               []createRuleRequest `json:"rules"`
}

type createEquationRequest struct {
	Name           string                `json:"name"`
	ContextAgentID uuid.UUID             `json:"context_agent_id"`
	Live           bool                  `json:"live"`
	Buckets        []createBucketRequest `json:"buckets"`
}

func (h *EquationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEquationRequest
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

	ve := &domain.ValueEquation{
		Name:           req.Name,
		ContextAgentID: req.ContextAgentID,
		Live:           req.Live,
	}

	for bi, b := range req.Buckets {
		if !domain.ValidFilterMethod(b.FilterMethod) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bucket %d: invalid filter_method", bi))
			return
		}
		if !domain.ValidPercentageBehavior(b.PercentageBehavior) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bucket %d: invalid percentage_behavior", bi))
			return
		}
		if b.Percentage.IsNegative() || b.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bucket %d: percentage must be between 0 and 100", bi))
			return
		}

		bucket := domain.ValueEquationBucket{
			Sequence:            b.Sequence,
			Name:                b.Name,
			Percentage:          b.Percentage,
			DistributionAgentID: b.DistributionAgentID,
			FilterMethod:        domain.FilterMethod(b.FilterMethod),
			PercentageBehavior:  domain.PercentageBehavior(b.PercentageBehavior),
		}

		for ri, rule := range b.Rules {
			if !domain.ValidEventKind(rule.EventKind) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("bucket %d rule %d: invalid event_kind", bi, ri))
				return
			}
			if !domain.ValidClaimRuleType(rule.ClaimRuleType) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("bucket %d rule %d: invalid claim_rule_type", bi, ri))
				return
			}
			if rule.ClaimEquation != "" {
				if _, err := expr.Parse(rule.ClaimEquation); err != nil {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("bucket %d rule %d: %v", bi, ri, err))
					return
				}
			}

			bucket.Rules = append(bucket.Rules, domain.ValueEquationBucketRule{
				EventKind:      domain.EventKind(rule.EventKind),
				ResourceTypeID: rule.ResourceTypeID,
				ClaimRuleType:  domain.ClaimRuleType(rule.ClaimRuleType),
				ClaimEquation:  rule.ClaimEquation,
			})
		}

		ve.Buckets = append(ve.Buckets, bucket)
	}

	if err := h.equations.Create(r.Context(), ve); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create value equation")
		return
	}

	writeJSON(w, http.StatusCreated, ve)
}

func (h *EquationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid equation id")
		return
	}

	ve, err := h.equations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "value equation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get value equation")
		return
	}

	writeJSON(w, http.StatusOK, ve)
}

type runEquationRequest struct {
	Amount  decimal.Decimal       `json:"amount"`
	Filters []domain.BucketFilter `json:"filters"`
}

// Run distributes an amount through the equation's buckets inside a single
// transaction and reports everything it wrote.
func (h *EquationHandler) Run(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid equation id")
		return
	}

	var req runEquationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.distribution.RunValueEquation(r.Context(), id, req.Amount, req.Filters)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEquationNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrNonPositiveAmount), errors.Is(err, service.ErrNoBuckets):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			var missing *service.MissingAccountError
			if errors.As(err, &missing) {
				writeError(w, http.StatusUnprocessableEntity, missing.Error())
				return
			}
			var insufficient *service.InsufficientDataError
			if errors.As(err, &insufficient) {
				writeError(w, http.StatusUnprocessableEntity, insufficient.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "distribution failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
