package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/expr"
	"github.com/valuenetwork/valueflow/internal/store"
)

var (
	ErrEquationNotFound  = errors.New("value equation not found")
	ErrAgentNotFound     = errors.New("agent not found")
	ErrNonPositiveAmount = errors.New("amount to distribute must be positive")
	ErrNoBuckets         = errors.New("value equation has no buckets")
)

// DistributionService turns a fixed disbursement pool into claims and
// distribution events, bucket by bucket. Every run executes inside a single
// storage transaction: a failed run leaves no partial writes.
type DistributionService struct {
	events    domain.EventStore
	resources domain.ResourceStore
	agents    domain.AgentStore
	claims    domain.ClaimStore
	equations domain.EquationStore
	shares    *ShareService
	tx        domain.TxRunner
	logger    *zap.Logger
}

func NewDistributionService(
	es domain.EventStore,
	rs domain.ResourceStore,
	as domain.AgentStore,
	cs domain.ClaimStore,
	qs domain.EquationStore,
	shares *ShareService,
	tx domain.TxRunner,
	logger *zap.Logger,
) *DistributionService {
	return &DistributionService{
		events:    es,
		resources: rs,
		agents:    as,
		claims:    cs,
		equations: qs,
		shares:    shares,
		tx:        tx,
		logger:    logger,
	}
}

// DistributionResult reports everything a run wrote: the disbursement out of
// the pool, per-agent distribution events, claim ledger entries, and the
// contribution events the buckets selected.
type DistributionResult struct {
	EquationID         uuid.UUID           `json:"equation_id"`
	AmountRequested    decimal.Decimal     `json:"amount_requested"`
	AmountDistributed  decimal.Decimal     `json:"amount_distributed"`
	DisbursementEvent  *domain.Event       `json:"disbursement_event,omitempty"`
	DistributionEvents []domain.Event      `json:"distribution_events"`
	ClaimEvents        []domain.ClaimEvent `json:"claim_events"`
	Contributions      []EventShare        `json:"contributions"`
	CycleWarnings      []CycleWarning      `json:"cycle_warnings,omitempty"`
}

// RunValueEquation distributes amount across the equation's buckets in
// sequence order and pays down the resulting claims.
func (s *DistributionService) RunValueEquation(ctx context.Context, equationID uuid.UUID, amount decimal.Decimal, filters []domain.BucketFilter) (*DistributionResult, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	ve, err := s.equations.GetByID(ctx, equationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEquationNotFound
		}
		return nil, err
	}
	if len(ve.Buckets) == 0 {
		return nil, ErrNoBuckets
	}

	filterByBucket := make(map[uuid.UUID]*domain.BucketFilter, len(filters))
	for i := range filters {
		filterByBucket[filters[i].BucketID] = &filters[i]
	}

	result := &DistributionResult{
		EquationID:      equationID,
		AmountRequested: amount,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.run(ctx, ve, amount, filterByBucket, result)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("value equation run complete",
		zap.String("equation_id", equationID.String()),
		zap.String("amount_requested", amount.String()),
		zap.String("amount_distributed", result.AmountDistributed.String()),
		zap.Int("distribution_events", len(result.DistributionEvents)),
		zap.Int("claim_events", len(result.ClaimEvents)))

	return result, nil
}

// payout accumulates what one agent is owed over the whole run.
type payout struct {
	agentID uuid.UUID
	amount  decimal.Decimal
}

type pendingClaimEvent struct {
	claimID uuid.UUID
	agentID uuid.UUID
	value   decimal.Decimal
}

func (s *DistributionService) run(ctx context.Context, ve *domain.ValueEquation, amount decimal.Decimal, filterByBucket map[uuid.UUID]*domain.BucketFilter, result *DistributionResult) error {
	now := time.Now().UTC()

	buckets := make([]domain.ValueEquationBucket, len(ve.Buckets))
	copy(buckets, ve.Buckets)
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Sequence < buckets[j].Sequence })

	var (
		payouts       []*payout
		payoutByAgent = make(map[uuid.UUID]*payout)
		pendingClaims []pendingClaimEvent
	)
	addPayout := func(agentID uuid.UUID, amt decimal.Decimal) {
		p, ok := payoutByAgent[agentID]
		if !ok {
			p = &payout{agentID: agentID}
			payoutByAgent[agentID] = p
			payouts = append(payouts, p)
		}
		p.amount = p.amount.Add(amt)
	}

	distributed := decimal.Zero
	remainingPool := amount
	residual := decimal.Zero

	for bi := range buckets {
		bucket := &buckets[bi]

		base := amount
		if bucket.PercentageBehavior == domain.BehaviorRemaining {
			base = remainingPool
		}
		bucketAmount := bucket.Percentage.Div(oneHundred).Mul(base)
		// Cumulative bucket amounts never exceed the pool.
		if distributed.Add(bucketAmount).GreaterThan(amount) {
			bucketAmount = amount.Sub(distributed)
		}
		if !bucketAmount.IsPositive() {
			continue
		}

		// A fixed distribution agent takes the whole bucket unconditionally.
		if bucket.DistributionAgentID != nil {
			amt := round2(bucketAmount)
			addPayout(*bucket.DistributionAgentID, amt)
			distributed = distributed.Add(amt)
			remainingPool = remainingPool.Sub(amt)
			continue
		}

		contribs, err := s.gatherContributions(ctx, ve, bucket, filterByBucket[bucket.ID], result)
		if err != nil {
			return err
		}

		entries, err := s.claimEntries(ctx, bucket, contribs, ve.ContextAgentID, now, result)
		if err != nil {
			return err
		}

		totalShares := decimal.Zero
		for _, e := range entries {
			totalShares = totalShares.Add(e.claim.ShareBasis(e.rule.ClaimRuleType))
		}
		if !totalShares.IsPositive() {
			// Nothing claimable; with "remaining" behavior the unspent
			// amount simply stays in the pool for later buckets.
			continue
		}

		spentExact := decimal.Zero
		spentRounded := decimal.Zero
		for _, e := range entries {
			basis := e.claim.ShareBasis(e.rule.ClaimRuleType)
			exact := bucketAmount.Mul(basis).Div(totalShares)
			if e.rule.ClaimRuleType == domain.ClaimDebtLike && exact.GreaterThan(e.claim.Value) {
				exact = e.claim.Value
			}
			amt := round2(exact)
			if !amt.IsPositive() {
				continue
			}

			paid := e.claim.Pay(e.rule.ClaimRuleType, amt)
			if !paid.IsPositive() {
				continue
			}
			if err := s.claims.UpdateValue(ctx, e.claim.ID, e.claim.Value); err != nil {
				return err
			}
			pendingClaims = append(pendingClaims, pendingClaimEvent{
				claimID: e.claim.ID,
				agentID: e.claim.AgentID,
				value:   paid,
			})
			addPayout(e.claim.AgentID, paid)
			spentExact = spentExact.Add(exact)
			spentRounded = spentRounded.Add(paid)
		}

		distributed = distributed.Add(spentRounded)
		remainingPool = remainingPool.Sub(spentRounded)
		residual = residual.Add(round2(spentExact).Sub(spentRounded))
	}

	if len(payouts) == 0 {
		result.AmountDistributed = decimal.Zero
		return nil
	}

	// Quantization drift is not spread proportionally: the whole residual
	// lands on the single largest payout.
	residual = round2(residual)
	if !residual.IsZero() {
		largest := payouts[0]
		for _, p := range payouts[1:] {
			if p.amount.GreaterThan(largest.amount) {
				largest = p
			}
		}
		largest.amount = largest.amount.Add(residual)
		distributed = distributed.Add(residual)
	}

	// Every recipient needs a settlement account before anything is written.
	for _, p := range payouts {
		agent, err := s.agents.GetByID(ctx, p.agentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAgentNotFound
			}
			return err
		}
		if agent.SettlementAccount == "" {
			return &MissingAccountError{AgentID: agent.ID, AgentName: agent.Name}
		}
	}

	total := round2(distributed)
	disb := &domain.Event{
		Kind:      domain.KindDisbursement,
		AgentID:   ve.ContextAgentID,
		Quantity:  total,
		Value:     total,
		EventDate: now,
	}
	if err := s.events.Create(ctx, disb); err != nil {
		return err
	}
	result.DisbursementEvent = disb

	eventByAgent := make(map[uuid.UUID]uuid.UUID, len(payouts))
	for _, p := range payouts {
		to := p.agentID
		ev := &domain.Event{
			Kind:      domain.KindDistribution,
			AgentID:   ve.ContextAgentID,
			ToAgentID: &to,
			Quantity:  p.amount,
			Value:     p.amount,
			EventDate: now,
		}
		if err := s.events.Create(ctx, ev); err != nil {
			return err
		}
		result.DistributionEvents = append(result.DistributionEvents, *ev)
		eventByAgent[p.agentID] = ev.ID
	}

	for _, pc := range pendingClaims {
		evID := eventByAgent[pc.agentID]
		ce := &domain.ClaimEvent{
			ClaimID:   pc.claimID,
			EventID:   &evID,
			Effect:    domain.EffectPay,
			Value:     pc.value,
			EventDate: now,
		}
		if err := s.claims.CreateClaimEvent(ctx, ce); err != nil {
			return err
		}
		result.ClaimEvents = append(result.ClaimEvents, *ce)
	}

	result.AmountDistributed = total
	return nil
}

// contribution is one eligible event for a bucket. share is set when the
// event came through the income-share calculator rather than straight off
// the ledger.
type contribution struct {
	event     domain.Event
	share     decimal.Decimal
	viaShares bool
}

func (s *DistributionService) gatherContributions(ctx context.Context, ve *domain.ValueEquation, bucket *domain.ValueEquationBucket, filter *domain.BucketFilter, result *DistributionResult) ([]contribution, error) {
	switch bucket.FilterMethod {
	case domain.FilterShipment:
		if filter == nil {
			return nil, nil
		}
		return s.shipmentContributions(ctx, ve, filter.ShipmentIDs, result)

	case domain.FilterOrder:
		if filter == nil {
			return nil, nil
		}
		var shipmentIDs []uuid.UUID
		for _, orderID := range filter.OrderIDs {
			shipments, err := s.events.ShipmentsForOrder(ctx, orderID)
			if err != nil {
				return nil, err
			}
			for i := range shipments {
				shipmentIDs = append(shipmentIDs, shipments[i].ID)
			}
		}
		return s.shipmentContributions(ctx, ve, shipmentIDs, result)

	case domain.FilterProcess:
		cf := domain.ContributionFilter{}
		if filter != nil {
			cf.ProcessIDs = filter.ProcessIDs
		}
		return s.ledgerContributions(ctx, cf)

	case domain.FilterDateRange:
		ctxAgent := ve.ContextAgentID
		cf := domain.ContributionFilter{ContextAgentID: &ctxAgent}
		if filter != nil {
			cf.Start = filter.Start
			cf.End = filter.End
		}
		return s.ledgerContributions(ctx, cf)

	default: // FilterAll
		ctxAgent := ve.ContextAgentID
		return s.ledgerContributions(ctx, domain.ContributionFilter{ContextAgentID: &ctxAgent})
	}
}

// shipmentContributions routes through the income-share calculator: the
// events behind each shipped quantity become the bucket's contributions,
// with their computed shares as claim basis.
func (s *DistributionService) shipmentContributions(ctx context.Context, ve *domain.ValueEquation, shipmentIDs []uuid.UUID, result *DistributionResult) ([]contribution, error) {
	var out []contribution
	for _, id := range shipmentIDs {
		shipment, err := s.events.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if shipment.ResourceID == nil || !shipment.Quantity.IsPositive() {
			continue
		}
		shares, tr, err := s.shares.ComputeIncomeShares(ctx, *shipment.ResourceID, ve, shipment.Quantity)
		if err != nil {
			return nil, err
		}
		result.CycleWarnings = append(result.CycleWarnings, tr.Cycles...)
		for _, es := range shares {
			out = append(out, contribution{event: es.Event, share: es.Share, viaShares: true})
		}
	}
	return out, nil
}

func (s *DistributionService) ledgerContributions(ctx context.Context, cf domain.ContributionFilter) ([]contribution, error) {
	events, err := s.events.FilterContributions(ctx, cf)
	if err != nil {
		return nil, err
	}
	out := make([]contribution, 0, len(events))
	for i := range events {
		out = append(out, contribution{event: events[i]})
	}
	return out, nil
}

type claimEntry struct {
	claim *domain.Claim
	rule  *domain.ValueEquationBucketRule
}

// claimEntries resolves each contribution to a claim, creating one the first
// time a (event, rule) pair is seen and reusing it on every later run.
func (s *DistributionService) claimEntries(ctx context.Context, bucket *domain.ValueEquationBucket, contribs []contribution, againstAgentID uuid.UUID, now time.Time, result *DistributionResult) ([]claimEntry, error) {
	entries := make([]claimEntry, 0, len(contribs))
	seen := make(map[uuid.UUID]map[uuid.UUID]bool)

	for i := range contribs {
		c := &contribs[i]
		rule := bucket.RuleFor(&c.event)
		if rule == nil {
			continue
		}
		// The same event can surface twice within one gather (e.g. two
		// shipments drawing on one process); it still maps to one claim.
		if seen[c.event.ID] == nil {
			seen[c.event.ID] = make(map[uuid.UUID]bool)
		}
		if seen[c.event.ID][rule.ID] {
			continue
		}
		seen[c.event.ID][rule.ID] = true

		cv, err := s.contributionClaimValue(ctx, rule, c)
		if err != nil {
			return nil, err
		}
		cv = round2(cv)
		if !cv.IsPositive() {
			continue
		}
		result.Contributions = append(result.Contributions, EventShare{Event: c.event, Share: cv})

		claim, err := s.claims.GetByEventAndRule(ctx, c.event.ID, rule.ID)
		if errors.Is(err, store.ErrNotFound) {
			claim = &domain.Claim{
				BucketRuleID:   rule.ID,
				EventID:        c.event.ID,
				AgentID:        c.event.AgentID,
				AgainstAgentID: againstAgentID,
				Value:          cv,
				OriginalValue:  cv,
				ClaimDate:      now,
			}
			if err := s.claims.Create(ctx, claim); err != nil {
				return nil, err
			}
			ce := &domain.ClaimEvent{
				ClaimID:   claim.ID,
				Effect:    domain.EffectCreate,
				Value:     cv,
				EventDate: now,
			}
			if err := s.claims.CreateClaimEvent(ctx, ce); err != nil {
				return nil, err
			}
			result.ClaimEvents = append(result.ClaimEvents, *ce)
		} else if err != nil {
			return nil, err
		}

		entries = append(entries, claimEntry{claim: claim, rule: rule})
	}
	return entries, nil
}

// contributionClaimValue evaluates the rule's claim equation for one
// contribution. Income-share contributions bind `value` to the computed
// share; ledger contributions bind the event's own values.
func (s *DistributionService) contributionClaimValue(ctx context.Context, rule *domain.ValueEquationBucketRule, c *contribution) (decimal.Decimal, error) {
	var res *domain.Resource
	if c.event.ResourceID != nil {
		r, err := s.resources.GetByID(ctx, *c.event.ResourceID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return decimal.Zero, err
		}
		res = r
	}

	env := eventEnv(&c.event, res)
	if c.viaShares {
		env["value"] = c.share
	}

	if rule.ClaimEquation == "" {
		if c.viaShares {
			return c.share, nil
		}
		return defaultEventValue(&c.event, res), nil
	}

	parsed, err := expr.Parse(rule.ClaimEquation)
	if err != nil {
		return decimal.Zero, err
	}
	return parsed.Eval(env)
}
