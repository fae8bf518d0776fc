package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind is the closed set of economic event kinds. The roll-up and
// distribution engines switch exhaustively over these; adding a kind means
// extending those switches.
type EventKind string

const (
	KindWork                 EventKind = "work"
	KindUse                  EventKind = "use"
	KindConsume              EventKind = "consume"
	KindCite                 EventKind = "cite"
	KindProduce              EventKind = "produce"
	KindResourceContribution EventKind = "resource-contribution"
	KindCashContribution     EventKind = "cash-contribution"
	KindPayment              EventKind = "payment"
	KindExpense              EventKind = "expense"
	KindReceive              EventKind = "receive"
	KindGive                 EventKind = "give"
	KindShipment             EventKind = "shipment"
	KindDistribution         EventKind = "distribution"
	KindDisbursement         EventKind = "disbursement"
)

func ValidEventKind(k string) bool {
	switch EventKind(k) {
	case KindWork, KindUse, KindConsume, KindCite, KindProduce,
		KindResourceContribution, KindCashContribution, KindPayment,
		KindExpense, KindReceive, KindGive, KindShipment,
		KindDistribution, KindDisbursement:
		return true
	}
	return false
}

// IsProcessInput reports whether the kind feeds a process rather than
// flowing out of it.
func (k EventKind) IsProcessInput() bool {
	switch k {
	case KindWork, KindUse, KindConsume, KindCite:
		return true
	}
	return false
}

// IsExchangeCost reports whether the kind adds to the cost side of an
// exchange (what the receiving side paid or contributed to obtain goods).
func (k EventKind) IsExchangeCost() bool {
	switch k {
	case KindPayment, KindExpense, KindWork, KindCashContribution:
		return true
	}
	return false
}

// Event is an immutable fact recording a quantity of a resource type moving
// between agents. Value may be rewritten once by the roll-up engine; events
// are otherwise never updated and never deleted except by explicit reversal.
type Event struct {
	ID             uuid.UUID       `json:"id"`
	Kind           EventKind       `json:"kind"`
	AgentID        uuid.UUID       `json:"agent_id"`
	ToAgentID      *uuid.UUID      `json:"to_agent_id,omitempty"`
	ContextAgentID *uuid.UUID      `json:"context_agent_id,omitempty"`
	ResourceID     *uuid.UUID      `json:"resource_id,omitempty"`
	ResourceTypeID *uuid.UUID      `json:"resource_type_id,omitempty"`
	ProcessID      *uuid.UUID      `json:"process_id,omitempty"`
	ExchangeID     *uuid.UUID      `json:"exchange_id,omitempty"`
	OrderID        *uuid.UUID      `json:"order_id,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	Value          decimal.Decimal `json:"value"`
	Price          decimal.Decimal `json:"price"`
	IsContribution bool            `json:"is_contribution"`
	EventDate      time.Time       `json:"event_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

// UnitValue returns value/quantity, or zero when the event has no quantity.
func (e *Event) UnitValue() decimal.Decimal {
	if e.Quantity.IsZero() {
		return decimal.Zero
	}
	return e.Value.Div(e.Quantity)
}
