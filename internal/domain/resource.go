package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Resource is a stateful unit of inventory or currency. ValuePerUnit is the
// roll-up engine's memoized result; ValuedAt records when it was last computed
// so the revaluer can find stale resources.
type Resource struct {
	ID                uuid.UUID       `json:"id"`
	ResourceTypeID    uuid.UUID       `json:"resource_type_id"`
	Identifier        string          `json:"identifier"`
	Quantity          decimal.Decimal `json:"quantity"`
	ValuePerUnit      decimal.Decimal `json:"value_per_unit"`
	ValuePerUnitOfUse decimal.Decimal `json:"value_per_unit_of_use"`
	StageID           *uuid.UUID      `json:"stage_id,omitempty"`
	ExchangeStageID   *uuid.UUID      `json:"exchange_stage_id,omitempty"`
	ValuedAt          *time.Time      `json:"valued_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Process is a bounded unit of work consuming input events and producing
// output events, owned by a context agent.
type Process struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	ContextAgentID uuid.UUID  `json:"context_agent_id"`
	ProcessTypeID  *uuid.UUID `json:"process_type_id,omitempty"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Exchange groups the events of a trade between two agents, e.g. a sale
// composed of a give and a reciprocal payment.
type Exchange struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	ContextAgentID *uuid.UUID `json:"context_agent_id,omitempty"`
	ExchangeDate   time.Time  `json:"exchange_date"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Agent is an economic actor. SettlementAccount is the virtual account or
// currency address distributions are paid into; agents without one cannot
// receive distributions.
type Agent struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	SettlementAccount string    `json:"settlement_account,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
