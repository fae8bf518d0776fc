package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/store"
)

// mockEventStore implements domain.EventStore over an in-memory slice.
type mockEventStore struct {
	events []*domain.Event
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{}
}

func (m *mockEventStore) add(e *domain.Event) *domain.Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.EventDate.IsZero() {
		e.EventDate = time.Now().UTC()
	}
	m.events = append(m.events, e)
	return e
}

func (m *mockEventStore) Create(ctx context.Context, e *domain.Event) error {
	e.CreatedAt = time.Now().UTC()
	m.add(e)
	return nil
}

func (m *mockEventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockEventStore) UpdateValue(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	for _, e := range m.events {
		if e.ID == id {
			e.Value = value
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockEventStore) filter(keep func(*domain.Event) bool) []domain.Event {
	var out []domain.Event
	for _, e := range m.events {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].EventDate.Before(out[j].EventDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *mockEventStore) Produced(ctx context.Context, resourceID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.Kind == domain.KindProduce && e.ResourceID != nil && *e.ResourceID == resourceID
	}), nil
}

func (m *mockEventStore) Contributions(ctx context.Context, resourceID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.Kind == domain.KindResourceContribution && e.ResourceID != nil && *e.ResourceID == resourceID
	}), nil
}

func (m *mockEventStore) Receipts(ctx context.Context, resourceID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.Kind == domain.KindReceive && e.ResourceID != nil && *e.ResourceID == resourceID
	}), nil
}

func (m *mockEventStore) ProcessInputs(ctx context.Context, processID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.ProcessID != nil && *e.ProcessID == processID && e.Kind != domain.KindProduce
	}), nil
}

func (m *mockEventStore) ProcessOutputs(ctx context.Context, processID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.ProcessID != nil && *e.ProcessID == processID && e.Kind == domain.KindProduce
	}), nil
}

func (m *mockEventStore) ByExchange(ctx context.Context, exchangeID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.ExchangeID != nil && *e.ExchangeID == exchangeID
	}), nil
}

func (m *mockEventStore) ShipmentsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		return e.Kind == domain.KindShipment && e.OrderID != nil && *e.OrderID == orderID
	}), nil
}

func (m *mockEventStore) FilterContributions(ctx context.Context, f domain.ContributionFilter) ([]domain.Event, error) {
	return m.filter(func(e *domain.Event) bool {
		if !e.IsContribution {
			return false
		}
		if f.ContextAgentID != nil {
			if e.ContextAgentID == nil || *e.ContextAgentID != *f.ContextAgentID {
				return false
			}
		}
		if len(f.ProcessIDs) > 0 {
			if e.ProcessID == nil {
				return false
			}
			found := false
			for _, id := range f.ProcessIDs {
				if *e.ProcessID == id {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		if f.Start != nil && e.EventDate.Before(*f.Start) {
			return false
		}
		if f.End != nil && e.EventDate.After(*f.End) {
			return false
		}
		return true
	}), nil
}

// mockResourceStore implements domain.ResourceStore for testing.
type mockResourceStore struct {
	resources map[uuid.UUID]*domain.Resource
}

func newMockResourceStore() *mockResourceStore {
	return &mockResourceStore{resources: make(map[uuid.UUID]*domain.Resource)}
}

func (m *mockResourceStore) add(r *domain.Resource) *domain.Resource {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.resources[r.ID] = r
	return r
}

func (m *mockResourceStore) Create(ctx context.Context, r *domain.Resource) error {
	m.add(r)
	return nil
}

func (m *mockResourceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	r, ok := m.resources[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return r, nil
}

func (m *mockResourceStore) UpdateValuePerUnit(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	r, ok := m.resources[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	r.ValuePerUnit = value
	r.ValuedAt = &now
	return nil
}

func (m *mockResourceStore) ListStale(ctx context.Context, limit int) ([]domain.Resource, error) {
	var out []domain.Resource
	for _, r := range m.resources {
		if r.ValuedAt == nil {
			out = append(out, *r)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mockProcessStore implements domain.ProcessStore for testing.
type mockProcessStore struct {
	processes map[uuid.UUID]*domain.Process
}

func newMockProcessStore() *mockProcessStore {
	return &mockProcessStore{processes: make(map[uuid.UUID]*domain.Process)}
}

func (m *mockProcessStore) add(p *domain.Process) *domain.Process {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.processes[p.ID] = p
	return p
}

func (m *mockProcessStore) Create(ctx context.Context, p *domain.Process) error {
	m.add(p)
	return nil
}

func (m *mockProcessStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	p, ok := m.processes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

// mockAgentStore implements domain.AgentStore for testing.
type mockAgentStore struct {
	agents map[uuid.UUID]*domain.Agent
}

func newMockAgentStore() *mockAgentStore {
	return &mockAgentStore{agents: make(map[uuid.UUID]*domain.Agent)}
}

func (m *mockAgentStore) add(name, account string) *domain.Agent {
	a := &domain.Agent{ID: uuid.New(), Name: name, SettlementAccount: account}
	m.agents[a.ID] = a
	return a
}

func (m *mockAgentStore) Create(ctx context.Context, a *domain.Agent) error {
	a.ID = uuid.New()
	m.agents[a.ID] = a
	return nil
}

func (m *mockAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

// mockEquationStore implements domain.EquationStore for testing.
type mockEquationStore struct {
	equations map[uuid.UUID]*domain.ValueEquation
}

func newMockEquationStore() *mockEquationStore {
	return &mockEquationStore{equations: make(map[uuid.UUID]*domain.ValueEquation)}
}

func (m *mockEquationStore) add(ve *domain.ValueEquation) *domain.ValueEquation {
	if ve.ID == uuid.Nil {
		ve.ID = uuid.New()
	}
	for bi := range ve.Buckets {
		b := &ve.Buckets[bi]
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		b.EquationID = ve.ID
		for ri := range b.Rules {
			r := &b.Rules[ri]
			if r.ID == uuid.Nil {
				r.ID = uuid.New()
			}
			r.BucketID = b.ID
		}
	}
	m.equations[ve.ID] = ve
	return ve
}

func (m *mockEquationStore) Create(ctx context.Context, ve *domain.ValueEquation) error {
	m.add(ve)
	return nil
}

func (m *mockEquationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ValueEquation, error) {
	ve, ok := m.equations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ve, nil
}

// mockClaimStore implements domain.ClaimStore for testing.
type mockClaimStore struct {
	claims      []*domain.Claim
	claimEvents []*domain.ClaimEvent
}

func newMockClaimStore() *mockClaimStore {
	return &mockClaimStore{}
}

func (m *mockClaimStore) Create(ctx context.Context, c *domain.Claim) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	m.claims = append(m.claims, c)
	return nil
}

func (m *mockClaimStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	for _, c := range m.claims {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockClaimStore) GetByEventAndRule(ctx context.Context, eventID, ruleID uuid.UUID) (*domain.Claim, error) {
	for _, c := range m.claims {
		if c.EventID == eventID && c.BucketRuleID == ruleID {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockClaimStore) UpdateValue(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	for _, c := range m.claims {
		if c.ID == id {
			c.Value = value
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockClaimStore) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]domain.Claim, error) {
	var out []domain.Claim
	for _, c := range m.claims {
		if c.AgentID == agentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockClaimStore) CreateClaimEvent(ctx context.Context, ce *domain.ClaimEvent) error {
	ce.ID = uuid.New()
	ce.CreatedAt = time.Now().UTC()
	m.claimEvents = append(m.claimEvents, ce)
	return nil
}

func (m *mockClaimStore) ListClaimEvents(ctx context.Context, claimID uuid.UUID) ([]domain.ClaimEvent, error) {
	var out []domain.ClaimEvent
	for _, ce := range m.claimEvents {
		if ce.ClaimID == claimID {
			out = append(out, *ce)
		}
	}
	return out, nil
}

// mockTxRunner runs the function directly; transactionality itself is
// exercised against a real database.
type mockTxRunner struct{}

func (mockTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
