package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ClaimState string

const (
	ClaimActive    ClaimState = "active"
	ClaimExhausted ClaimState = "exhausted"
)

// Claim records that an agent is owed value by another agent, created under a
// specific bucket rule by a specific contribution event. Claims are paid down
// to zero and kept as history; they are never deleted.
type Claim struct {
	ID             uuid.UUID       `json:"id"`
	BucketRuleID   uuid.UUID       `json:"bucket_rule_id"`
	EventID        uuid.UUID       `json:"event_id"`
	AgentID        uuid.UUID       `json:"agent_id"`
	AgainstAgentID uuid.UUID       `json:"against_agent_id"`
	Value          decimal.Decimal `json:"value"`
	OriginalValue  decimal.Decimal `json:"original_value"`
	ClaimDate      time.Time       `json:"claim_date"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (c *Claim) State() ClaimState {
	if c.Value.IsPositive() {
		return ClaimActive
	}
	return ClaimExhausted
}

// ShareBasis returns the value used when dividing a bucket amount among
// claims. Debt-like and once claims weigh by what remains outstanding;
// equity-like claims weigh by their original value forever.
func (c *Claim) ShareBasis(rt ClaimRuleType) decimal.Decimal {
	if rt == ClaimEquityLike {
		return c.OriginalValue
	}
	return c.Value
}

// Pay applies a distribution amount to the claim and returns the amount
// actually paid. Debt-like claims never pay out more than their remaining
// value; once claims are forced to zero after the first payment.
func (c *Claim) Pay(rt ClaimRuleType, amount decimal.Decimal) decimal.Decimal {
	switch rt {
	case ClaimDebtLike:
		if amount.GreaterThan(c.Value) {
			amount = c.Value
		}
		c.Value = c.Value.Sub(amount)
	case ClaimEquityLike:
		// value untouched, perpetual claim
	case ClaimOnce:
		c.Value = decimal.Zero
	}
	return amount
}

type ClaimEventEffect string

const (
	EffectCreate ClaimEventEffect = "+"
	EffectPay    ClaimEventEffect = "-"
)

// ClaimEvent is an immutable ledger entry recording an adjustment to a
// claim's outstanding value.
type ClaimEvent struct {
	ID        uuid.UUID        `json:"id"`
	ClaimID   uuid.UUID        `json:"claim_id"`
	EventID   *uuid.UUID       `json:"event_id,omitempty"`
	Effect    ClaimEventEffect `json:"effect"`
	Value     decimal.Decimal  `json:"value"`
	EventDate time.Time        `json:"event_date"`
	CreatedAt time.Time        `json:"created_at"`
}
