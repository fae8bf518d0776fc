package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/store"
)

var ErrResourceNotFound = errors.New("resource not found")

// RollUpService walks the contribution graph backward from a resource and
// aggregates the values of everything that produced it into a per-unit value.
//
// The engine is split into a pure ComputeValue and a persisting RollUp so
// read-only reports can evaluate without mutating stored state.
type RollUpService struct {
	events    domain.EventStore
	resources domain.ResourceStore
	processes domain.ProcessStore
	logger    *zap.Logger
}

func NewRollUpService(es domain.EventStore, rs domain.ResourceStore, ps domain.ProcessStore, logger *zap.Logger) *RollUpService {
	return &RollUpService{
		events:    es,
		resources: rs,
		processes: ps,
		logger:    logger,
	}
}

// ComputeValue returns the resource's per-unit value without writing anything.
// The returned Traversal carries any re-entry warnings the walk collected.
func (s *RollUpService) ComputeValue(ctx context.Context, resourceID uuid.UUID, ve *domain.ValueEquation) (decimal.Decimal, *Traversal, error) {
	tr := NewTraversal()
	v, err := s.rollUp(ctx, resourceID, ve, tr)
	if err != nil {
		return decimal.Zero, tr, err
	}
	return v, tr, nil
}

// RollUp computes the per-unit value and persists it onto the resource,
// rounded half-up to two decimal places. Repeated calls are idempotent.
func (s *RollUpService) RollUp(ctx context.Context, resourceID uuid.UUID, ve *domain.ValueEquation) (decimal.Decimal, error) {
	v, tr, err := s.ComputeValue(ctx, resourceID, ve)
	if err != nil {
		return decimal.Zero, err
	}
	rounded := round2(v)

	if len(tr.Cycles) > 0 {
		s.logger.Warn("roll-up truncated at revisited nodes",
			zap.String("resource_id", resourceID.String()),
			zap.Int("revisits", len(tr.Cycles)))
	}

	if err := s.resources.UpdateValuePerUnit(ctx, resourceID, rounded); err != nil {
		return decimal.Zero, err
	}
	return rounded, nil
}

// valueFragment is one independent source of a resource's value: a per-unit
// value and the quantity obtained at that value.
type valueFragment struct {
	perUnit  decimal.Decimal
	quantity decimal.Decimal
}

func (s *RollUpService) rollUp(ctx context.Context, resourceID uuid.UUID, ve *domain.ValueEquation, tr *Traversal) (decimal.Decimal, error) {
	res, err := s.resources.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, ErrResourceNotFound
		}
		return decimal.Zero, err
	}

	if !tr.enterResource(resourceID) {
		// Revisited: fall back to the stored value rather than descending
		// again. The warning is already on the traversal.
		return res.ValuePerUnit, nil
	}

	var fragments []valueFragment

	// Direct contributions: the agent put the resource in at a recorded value.
	contribs, err := s.events.Contributions(ctx, resourceID)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range contribs {
		c := &contribs[i]
		if !tr.enterEvent(c.ID) || c.Quantity.IsZero() {
			continue
		}
		fragments = append(fragments, valueFragment{perUnit: c.UnitValue(), quantity: c.Quantity})
	}

	// Receipts: purchased quantity, valued through the originating exchange.
	receipts, err := s.events.Receipts(ctx, resourceID)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range receipts {
		r := &receipts[i]
		if !tr.enterEvent(r.ID) || r.Quantity.IsZero() {
			continue
		}
		perUnit, err := s.receiptUnitValue(ctx, r, tr)
		if err != nil {
			return decimal.Zero, err
		}
		fragments = append(fragments, valueFragment{perUnit: perUnit, quantity: r.Quantity})
	}

	// Production: each producing process contributes its input value spread
	// over the quantity it produced.
	produced, err := s.events.Produced(ctx, resourceID)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range produced {
		p := &produced[i]
		if p.ProcessID == nil {
			continue
		}
		if !tr.enterEvent(p.ID) || p.Quantity.IsZero() {
			continue
		}
		if !tr.enterProcess(*p.ProcessID) {
			continue
		}
		procValue, err := s.processValue(ctx, *p.ProcessID, ve, tr)
		if err != nil {
			return decimal.Zero, err
		}
		fragments = append(fragments, valueFragment{
			perUnit:  procValue.Div(p.Quantity),
			quantity: p.Quantity,
		})
	}

	return weightedAverage(fragments), nil
}

// weightedAverage combines value fragments as sum(v_i*q_i)/sum(q_i). A
// resource never produced or obtained has no fragments and rolls up to zero.
func weightedAverage(fragments []valueFragment) decimal.Decimal {
	if len(fragments) == 0 {
		return decimal.Zero
	}
	if len(fragments) == 1 {
		return fragments[0].perUnit
	}
	total := decimal.Zero
	qty := decimal.Zero
	for _, f := range fragments {
		total = total.Add(f.perUnit.Mul(f.quantity))
		qty = qty.Add(f.quantity)
	}
	if qty.IsZero() {
		return decimal.Zero
	}
	return total.Div(qty)
}

// processValue sums the value of a process's inputs. Citations are priced
// last, each as quantity/100 of the sum of all non-citation input value.
func (s *RollUpService) processValue(ctx context.Context, processID uuid.UUID, ve *domain.ValueEquation, tr *Traversal) (decimal.Decimal, error) {
	inputs, err := s.events.ProcessInputs(ctx, processID)
	if err != nil {
		return decimal.Zero, err
	}

	base := decimal.Zero
	var citations []domain.Event

	for i := range inputs {
		in := &inputs[i]
		if !tr.enterEvent(in.ID) {
			continue
		}

		switch in.Kind {
		case domain.KindCite:
			citations = append(citations, *in)

		case domain.KindWork:
			v, err := ruleValue(ve, in, nil)
			if err != nil {
				return decimal.Zero, err
			}
			base = base.Add(v)

		case domain.KindUse:
			res, err := s.inputResource(ctx, in)
			if err != nil {
				return decimal.Zero, err
			}
			v, err := ruleValue(ve, in, res)
			if err != nil {
				return decimal.Zero, err
			}
			base = base.Add(v)

		case domain.KindConsume:
			if in.ResourceID == nil {
				return decimal.Zero, &InsufficientDataError{EventID: in.ID, Reason: "consume event has no resource"}
			}
			perUnit, err := s.rollUp(ctx, *in.ResourceID, ve, tr)
			if err != nil {
				return decimal.Zero, err
			}
			base = base.Add(perUnit.Mul(in.Quantity))

		default:
			if in.IsContribution {
				base = base.Add(in.Value)
			}
		}
	}

	// Citation step is order-dependent: always priced after all other
	// production value has been summed.
	total := base
	for i := range citations {
		total = total.Add(citations[i].Quantity.Div(oneHundred).Mul(base))
	}
	return total, nil
}

// receiptUnitValue apportions the cost side of the receipt's exchange
// (payments, expenses, work, cash contributions) over its receipts, weighted
// by each receipt's share of total receipt value.
func (s *RollUpService) receiptUnitValue(ctx context.Context, receipt *domain.Event, tr *Traversal) (decimal.Decimal, error) {
	if receipt.ExchangeID == nil {
		return receipt.UnitValue(), nil
	}
	if !tr.enterExchange(*receipt.ExchangeID) {
		return receipt.UnitValue(), nil
	}

	evs, err := s.events.ByExchange(ctx, *receipt.ExchangeID)
	if err != nil {
		return decimal.Zero, err
	}

	cost := decimal.Zero
	totalReceiptValue := decimal.Zero
	for i := range evs {
		e := &evs[i]
		if e.Kind.IsExchangeCost() {
			cost = cost.Add(e.Value)
		}
		if e.Kind == domain.KindReceive {
			totalReceiptValue = totalReceiptValue.Add(e.Value)
		}
	}

	if totalReceiptValue.IsZero() || receipt.Quantity.IsZero() {
		return receipt.UnitValue(), nil
	}

	weight := receipt.Value.Div(totalReceiptValue)
	return cost.Mul(weight).Div(receipt.Quantity), nil
}

// inputResource loads the resource referenced by an input event, or nil when
// the event carries none.
func (s *RollUpService) inputResource(ctx context.Context, e *domain.Event) (*domain.Resource, error) {
	if e.ResourceID == nil {
		return nil, nil
	}
	res, err := s.resources.GetByID(ctx, *e.ResourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &InsufficientDataError{EventID: e.ID, Reason: "referenced resource does not exist"}
		}
		return nil, err
	}
	return res, nil
}
