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

var ErrNonPositiveQuantity = errors.New("quantity must be positive")

// EventShare is a contribution event annotated with the portion of the
// requested quantity's value attributable to it.
type EventShare struct {
	Event domain.Event    `json:"event"`
	Share decimal.Decimal `json:"share"`
}

// ShareService apportions a finite quantity's worth of a resource's value
// among the events that contributed to it. It mirrors the roll-up traversal
// but scales every credit by how much of each source is actually drawn on.
type ShareService struct {
	events    domain.EventStore
	resources domain.ResourceStore
	processes domain.ProcessStore
	logger    *zap.Logger
}

func NewShareService(es domain.EventStore, rs domain.ResourceStore, ps domain.ProcessStore, logger *zap.Logger) *ShareService {
	return &ShareService{
		events:    es,
		resources: rs,
		processes: ps,
		logger:    logger,
	}
}

// ComputeIncomeShares returns the contribution events behind quantity units
// of the resource, each annotated with its share of the value. Events are
// appended in traversal order, which the stores keep deterministic (event
// date, then id), so repeated calls produce identical output.
func (s *ShareService) ComputeIncomeShares(ctx context.Context, resourceID uuid.UUID, ve *domain.ValueEquation, quantity decimal.Decimal) ([]EventShare, *Traversal, error) {
	if !quantity.IsPositive() {
		return nil, nil, ErrNonPositiveQuantity
	}
	tr := NewTraversal()
	var acc []EventShare
	if err := s.incomeShares(ctx, resourceID, ve, quantity, &acc, tr); err != nil {
		return nil, tr, err
	}
	return acc, tr, nil
}

func (s *ShareService) incomeShares(ctx context.Context, resourceID uuid.UUID, ve *domain.ValueEquation, quantity decimal.Decimal, acc *[]EventShare, tr *Traversal) error {
	if _, err := s.resources.GetByID(ctx, resourceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrResourceNotFound
		}
		return err
	}
	if !tr.enterResource(resourceID) {
		return nil
	}

	remaining := quantity

	// Direct contributions first: each satisfies as much of the demand as
	// its quantity covers, credited at its rule-computed value scaled by the
	// fraction drawn.
	contribs, err := s.events.Contributions(ctx, resourceID)
	if err != nil {
		return err
	}
	for i := range contribs {
		if !remaining.IsPositive() {
			break
		}
		c := &contribs[i]
		if !tr.enterEvent(c.ID) || c.Quantity.IsZero() {
			continue
		}
		take := decimal.Min(remaining, c.Quantity)
		frac := take.Div(c.Quantity)
		v, err := ruleValue(ve, c, nil)
		if err != nil {
			return err
		}
		*acc = append(*acc, EventShare{Event: *c, Share: v.Mul(frac)})
		remaining = remaining.Sub(take)
	}

	// Receipts: the exchange's cost events are credited, weighted by this
	// receipt's share of total receipt value.
	receipts, err := s.events.Receipts(ctx, resourceID)
	if err != nil {
		return err
	}
	for i := range receipts {
		if !remaining.IsPositive() {
			break
		}
		r := &receipts[i]
		if !tr.enterEvent(r.ID) || r.Quantity.IsZero() {
			continue
		}
		take := decimal.Min(remaining, r.Quantity)
		frac := take.Div(r.Quantity)
		if err := s.receiptShares(ctx, r, ve, frac, acc, tr); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	// Producing processes, in due-date-then-id order; unapportioned quantity
	// carries to the next producing event.
	produced, err := s.events.Produced(ctx, resourceID)
	if err != nil {
		return err
	}
	for i := range produced {
		if !remaining.IsPositive() {
			break
		}
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
		take := decimal.Min(remaining, p.Quantity)
		// distro fraction: min(1, requested/produced)
		frac := take.Div(p.Quantity)
		if err := s.processShares(ctx, *p.ProcessID, ve, frac, acc, tr); err != nil {
			return err
		}
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		s.logger.Debug("income shares under-apportioned",
			zap.String("resource_id", resourceID.String()),
			zap.String("unmet_quantity", remaining.String()))
	}
	return nil
}

// processShares credits a process's inputs, every share scaled by frac.
// Citations are credited last as a percentage of the process's other
// (already scaled) input shares.
func (s *ShareService) processShares(ctx context.Context, processID uuid.UUID, ve *domain.ValueEquation, frac decimal.Decimal, acc *[]EventShare, tr *Traversal) error {
	inputs, err := s.events.ProcessInputs(ctx, processID)
	if err != nil {
		return err
	}

	scaledBase := decimal.Zero
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
				return err
			}
			share := v.Mul(frac)
			*acc = append(*acc, EventShare{Event: *in, Share: share})
			scaledBase = scaledBase.Add(share)

		case domain.KindUse:
			res, err := s.inputResource(ctx, in)
			if err != nil {
				return err
			}
			v, err := ruleValue(ve, in, res)
			if err != nil {
				return err
			}
			share := v.Mul(frac)
			*acc = append(*acc, EventShare{Event: *in, Share: share})
			scaledBase = scaledBase.Add(share)

		case domain.KindConsume:
			if in.ResourceID == nil {
				return &InsufficientDataError{EventID: in.ID, Reason: "consume event has no resource"}
			}
			before := len(*acc)
			if err := s.incomeShares(ctx, *in.ResourceID, ve, in.Quantity.Mul(frac), acc, tr); err != nil {
				return err
			}
			for _, es := range (*acc)[before:] {
				scaledBase = scaledBase.Add(es.Share)
			}

		default:
			if in.IsContribution {
				share := in.Value.Mul(frac)
				*acc = append(*acc, EventShare{Event: *in, Share: share})
				scaledBase = scaledBase.Add(share)
			}
		}
	}

	for i := range citations {
		c := &citations[i]
		*acc = append(*acc, EventShare{
			Event: *c,
			Share: c.Quantity.Div(oneHundred).Mul(scaledBase),
		})
	}
	return nil
}

// receiptShares credits the cost side of a receipt's exchange: payments,
// expenses, work and cash contributions, weighted by the receipt's share of
// total receipt value and scaled by frac.
func (s *ShareService) receiptShares(ctx context.Context, receipt *domain.Event, ve *domain.ValueEquation, frac decimal.Decimal, acc *[]EventShare, tr *Traversal) error {
	if receipt.ExchangeID == nil || !tr.enterExchange(*receipt.ExchangeID) {
		*acc = append(*acc, EventShare{Event: *receipt, Share: receipt.Value.Mul(frac)})
		return nil
	}

	evs, err := s.events.ByExchange(ctx, *receipt.ExchangeID)
	if err != nil {
		return err
	}

	totalReceiptValue := decimal.Zero
	for i := range evs {
		if evs[i].Kind == domain.KindReceive {
			totalReceiptValue = totalReceiptValue.Add(evs[i].Value)
		}
	}
	if totalReceiptValue.IsZero() {
		*acc = append(*acc, EventShare{Event: *receipt, Share: receipt.Value.Mul(frac)})
		return nil
	}

	weight := receipt.Value.Div(totalReceiptValue).Mul(frac)
	for i := range evs {
		e := &evs[i]
		if !e.Kind.IsExchangeCost() {
			continue
		}
		if !tr.enterEvent(e.ID) {
			continue
		}
		v, err := ruleValue(ve, e, nil)
		if err != nil {
			return err
		}
		*acc = append(*acc, EventShare{Event: *e, Share: v.Mul(weight)})
	}
	return nil
}

func (s *ShareService) inputResource(ctx context.Context, e *domain.Event) (*domain.Resource, error) {
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
