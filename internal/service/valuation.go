package service

import (
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
	"github.com/valuenetwork/valueflow/internal/expr"
)

var oneHundred = decimal.NewFromInt(100)

// round2 quantizes to two decimal places, half away from zero. Intermediate
// arithmetic stays exact; rounding happens only at the point of storage or
// payout.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// eventEnv builds the fixed variable environment for claim equations. Every
// name in the namespace is always bound; unset values are zero.
func eventEnv(e *domain.Event, res *domain.Resource) expr.Env {
	env := expr.Env{
		"quantity":          e.Quantity,
		"value":             e.Value,
		"pricePerUnit":      e.Price,
		"valuePerUnit":      decimal.Zero,
		"valuePerUnitOfUse": decimal.Zero,
	}
	if res != nil {
		env["valuePerUnit"] = res.ValuePerUnit
		env["valuePerUnitOfUse"] = res.ValuePerUnitOfUse
	}
	return env
}

// defaultEventValue is the per-kind valuation used when no bucket rule
// applies. Consume and cite events are valued by the traversal itself and
// never reach this function.
func defaultEventValue(e *domain.Event, res *domain.Resource) decimal.Decimal {
	switch e.Kind {
	case domain.KindWork:
		if !e.Value.IsZero() {
			return e.Value
		}
		return e.Price.Mul(e.Quantity)
	case domain.KindUse:
		if !e.Price.IsZero() {
			return e.Price.Mul(e.Quantity)
		}
		if res != nil {
			return res.ValuePerUnitOfUse.Mul(e.Quantity)
		}
		return decimal.Zero
	default:
		return e.Value
	}
}

// ruleValue evaluates the event's claim value under the equation: the first
// matching bucket rule's expression, or the per-kind default when no rule
// matches or the rule carries no expression.
func ruleValue(ve *domain.ValueEquation, e *domain.Event, res *domain.Resource) (decimal.Decimal, error) {
	if ve == nil {
		return defaultEventValue(e, res), nil
	}
	rule := ve.RuleFor(e)
	if rule == nil || rule.ClaimEquation == "" {
		return defaultEventValue(e, res), nil
	}
	parsed, err := expr.Parse(rule.ClaimEquation)
	if err != nil {
		return decimal.Zero, err
	}
	return parsed.Eval(eventEnv(e, res))
}
