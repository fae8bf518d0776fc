package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FilterMethod string

const (
	FilterAll       FilterMethod = "all"
	FilterOrder     FilterMethod = "order"
	FilterShipment  FilterMethod = "shipment"
	FilterProcess   FilterMethod = "process"
	FilterDateRange FilterMethod = "date-range"
)

func ValidFilterMethod(m string) bool {
	switch FilterMethod(m) {
	case FilterAll, FilterOrder, FilterShipment, FilterProcess, FilterDateRange:
		return true
	}
	return false
}

type PercentageBehavior string

const (
	// BehaviorStraight distributes the bucket's fixed percentage; unspent
	// amount is left for later buckets but the percentage base never changes.
	BehaviorStraight PercentageBehavior = "straight"
	// BehaviorRemaining takes the percentage of whatever is still
	// undistributed, and rolls unspent amounts forward.
	BehaviorRemaining PercentageBehavior = "remaining"
)

func ValidPercentageBehavior(b string) bool {
	switch PercentageBehavior(b) {
	case BehaviorStraight, BehaviorRemaining:
		return true
	}
	return false
}

// ValueEquation partitions a distribution pool into buckets, each with its
// own contribution filter and claim rules.
type ValueEquation struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	ContextAgentID uuid.UUID            `json:"context_agent_id"`
	Live           bool                 `json:"live"`
	Buckets        []ValueEquationBucket `json:"buckets,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// RuleFor returns the first bucket rule matching the event, or nil.
func (ve *ValueEquation) RuleFor(e *Event) *ValueEquationBucketRule {
	for bi := range ve.Buckets {
		for ri := range ve.Buckets[bi].Rules {
			if ve.Buckets[bi].Rules[ri].Matches(e) {
				return &ve.Buckets[bi].Rules[ri]
			}
		}
	}
	return nil
}

type ValueEquationBucket struct {
	ID                  uuid.UUID                 `json:"id"`
	EquationID          uuid.UUID                 `json:"equation_id"`
	Sequence            int                       `json:"sequence"`
	Name                string                    `json:"name"`
	Percentage          decimal.Decimal           `json:"percentage"`
	DistributionAgentID *uuid.UUID                `json:"distribution_agent_id,omitempty"`
	FilterMethod        FilterMethod              `json:"filter_method"`
	PercentageBehavior  PercentageBehavior        `json:"percentage_behavior"`
	Rules               []ValueEquationBucketRule `json:"rules,omitempty"`
	CreatedAt           time.Time                 `json:"created_at"`
}

// RuleFor returns the first rule in this bucket matching the event, or nil.
func (b *ValueEquationBucket) RuleFor(e *Event) *ValueEquationBucketRule {
	for i := range b.Rules {
		if b.Rules[i].Matches(e) {
			return &b.Rules[i]
		}
	}
	return nil
}

type ClaimRuleType string

const (
	// ClaimDebtLike claims shrink as they are paid and exhaust at zero.
	ClaimDebtLike ClaimRuleType = "debt-like"
	// ClaimEquityLike claims are perpetual; payments never reduce them.
	ClaimEquityLike ClaimRuleType = "equity-like"
	// ClaimOnce claims are exhausted by their first distribution regardless
	// of the amount paid.
	ClaimOnce ClaimRuleType = "once"
)

func ValidClaimRuleType(t string) bool {
	switch ClaimRuleType(t) {
	case ClaimDebtLike, ClaimEquityLike, ClaimOnce:
		return true
	}
	return false
}

// ValueEquationBucketRule maps an event kind (plus an optional resource-type
// filter) to a claim-value equation evaluated by the restricted expression
// evaluator.
type ValueEquationBucketRule struct {
	ID             uuid.UUID     `json:"id"`
	BucketID       uuid.UUID     `json:"bucket_id"`
	EventKind      EventKind     `json:"event_kind"`
	ResourceTypeID *uuid.UUID    `json:"resource_type_id,omitempty"`
	ClaimRuleType  ClaimRuleType `json:"claim_rule_type"`
	ClaimEquation  string        `json:"claim_equation"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Matches reports whether the rule applies to the event.
func (r *ValueEquationBucketRule) Matches(e *Event) bool {
	if r.EventKind != e.Kind {
		return false
	}
	if r.ResourceTypeID != nil {
		if e.ResourceTypeID == nil || *e.ResourceTypeID != *r.ResourceTypeID {
			return false
		}
	}
	return true
}

// BucketFilter is the deserialized form of a bucket's externally supplied
// filter parameters. Which fields matter depends on the bucket's FilterMethod.
type BucketFilter struct {
	BucketID    uuid.UUID   `json:"bucket_id"`
	OrderIDs    []uuid.UUID `json:"order_ids,omitempty"`
	ShipmentIDs []uuid.UUID `json:"shipment_ids,omitempty"`
	ProcessIDs  []uuid.UUID `json:"process_ids,omitempty"`
	Start       *time.Time  `json:"start,omitempty"`
	End         *time.Time  `json:"end,omitempty"`
}
