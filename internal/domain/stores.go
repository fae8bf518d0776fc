package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContributionFilter selects contribution events for a bucket whose filter
// method works directly on the event ledger (process, date-range, all).
type ContributionFilter struct {
	ContextAgentID *uuid.UUID
	ProcessIDs     []uuid.UUID
	Start          *time.Time
	End            *time.Time
}

type EventStore interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	// UpdateValue rewrites an event's value, the one permitted mutation.
	UpdateValue(ctx context.Context, id uuid.UUID, value decimal.Decimal) error

	// Graph traversal reads. All return events ordered by event date then id
	// so traversal output is reproducible.
	Produced(ctx context.Context, resourceID uuid.UUID) ([]Event, error)
	Contributions(ctx context.Context, resourceID uuid.UUID) ([]Event, error)
	Receipts(ctx context.Context, resourceID uuid.UUID) ([]Event, error)
	ProcessInputs(ctx context.Context, processID uuid.UUID) ([]Event, error)
	ProcessOutputs(ctx context.Context, processID uuid.UUID) ([]Event, error)
	ByExchange(ctx context.Context, exchangeID uuid.UUID) ([]Event, error)

	// Bucket filter reads.
	ShipmentsForOrder(ctx context.Context, orderID uuid.UUID) ([]Event, error)
	FilterContributions(ctx context.Context, f ContributionFilter) ([]Event, error)
}

type ResourceStore interface {
	Create(ctx context.Context, r *Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*Resource, error)
	// UpdateValuePerUnit persists a roll-up result and stamps valued_at.
	UpdateValuePerUnit(ctx context.Context, id uuid.UUID, value decimal.Decimal) error
	// ListStale returns resources whose value inputs changed after their
	// last valuation.
	ListStale(ctx context.Context, limit int) ([]Resource, error)
}

type ProcessStore interface {
	Create(ctx context.Context, p *Process) error
	GetByID(ctx context.Context, id uuid.UUID) (*Process, error)
}

type ExchangeStore interface {
	Create(ctx context.Context, x *Exchange) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exchange, error)
}

type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
}

type EquationStore interface {
	// Create stores an equation with its nested buckets and rules.
	Create(ctx context.Context, ve *ValueEquation) error
	// GetByID returns the equation with buckets (in sequence order) and
	// rules loaded.
	GetByID(ctx context.Context, id uuid.UUID) (*ValueEquation, error)
}

type ClaimStore interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// GetByEventAndRule returns the claim created for a (contribution event,
	// bucket rule) pair, or store.ErrNotFound. Backed by a uniqueness
	// constraint so a claim can never be created twice for the same pair.
	GetByEventAndRule(ctx context.Context, eventID, ruleID uuid.UUID) (*Claim, error)
	UpdateValue(ctx context.Context, id uuid.UUID, value decimal.Decimal) error
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]Claim, error)
	CreateClaimEvent(ctx context.Context, ce *ClaimEvent) error
	ListClaimEvents(ctx context.Context, claimID uuid.UUID) ([]ClaimEvent, error)
}

// TxRunner executes fn inside a single storage transaction. Stores called
// with the ctx passed to fn participate in that transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
