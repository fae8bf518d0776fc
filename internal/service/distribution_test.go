package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valuenetwork/valueflow/internal/domain"
)

type distroFixture struct {
	events    *mockEventStore
	resources *mockResourceStore
	processes *mockProcessStore
	agents    *mockAgentStore
	claims    *mockClaimStore
	equations *mockEquationStore
	svc       *DistributionService

	network *domain.Agent
}

func newDistroFixture() *distroFixture {
	f := &distroFixture{
		events:    newMockEventStore(),
		resources: newMockResourceStore(),
		processes: newMockProcessStore(),
		agents:    newMockAgentStore(),
		claims:    newMockClaimStore(),
		equations: newMockEquationStore(),
	}
	logger := zap.NewNop()
	shares := NewShareService(f.events, f.resources, f.processes, logger)
	f.svc = NewDistributionService(f.events, f.resources, f.agents, f.claims, f.equations, shares, mockTxRunner{}, logger)
	f.network = f.agents.add("Network", "acct:network")
	return f
}

// addContribution records a work contribution by the agent in the network's
// context, valued at the given amount.
func (f *distroFixture) addContribution(agent *domain.Agent, value string, at time.Time) *domain.Event {
	netID := f.network.ID
	return f.events.add(&domain.Event{
		Kind:           domain.KindWork,
		AgentID:        agent.ID,
		ContextAgentID: &netID,
		Quantity:       dec("1"),
		Value:          dec(value),
		IsContribution: true,
		EventDate:      at,
	})
}

// addEquation registers a single-bucket equation over all contributions.
func (f *distroFixture) addEquation(percentage string, ruleType domain.ClaimRuleType) *domain.ValueEquation {
	return f.equations.add(&domain.ValueEquation{
		Name:           "split",
		ContextAgentID: f.network.ID,
		Buckets: []domain.ValueEquationBucket{{
			Sequence:           0,
			Name:               "contributors",
			Percentage:         dec(percentage),
			FilterMethod:       domain.FilterAll,
			PercentageBehavior: domain.BehaviorStraight,
			Rules: []domain.ValueEquationBucketRule{{
				EventKind:     domain.KindWork,
				ClaimRuleType: ruleType,
			}},
		}},
	})
}

func TestRunValueEquation_HalfBucketLeavesHalf(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	alice := f.agents.add("Alice", "acct:alice")
	bob := f.agents.add("Bob", "acct:bob")
	f.addContribution(alice, "50", base)
	f.addContribution(bob, "50", base.Add(time.Hour))

	ve := f.addEquation("50", domain.ClaimDebtLike)

	result, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !result.AmountDistributed.Equal(dec("50.00")) {
		t.Fatalf("expected 50.00 distributed, got %s", result.AmountDistributed)
	}
	if len(result.DistributionEvents) != 2 {
		t.Fatalf("expected two distribution events, got %d", len(result.DistributionEvents))
	}
	for _, ev := range result.DistributionEvents {
		if !ev.Value.Equal(dec("25.00")) {
			t.Fatalf("expected 25.00 per distribution event, got %s", ev.Value)
		}
	}
	if result.DisbursementEvent == nil || !result.DisbursementEvent.Value.Equal(dec("50.00")) {
		t.Fatal("expected a 50.00 disbursement event")
	}
}

func TestRunValueEquation_ClaimsAreReused(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	alice := f.agents.add("Alice", "acct:alice")
	bob := f.agents.add("Bob", "acct:bob")
	f.addContribution(alice, "50", base)
	f.addContribution(bob, "50", base.Add(time.Hour))

	ve := f.addEquation("50", domain.ClaimDebtLike)

	if _, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(f.claims.claims) != 2 {
		t.Fatalf("expected 2 claims after first run, got %d", len(f.claims.claims))
	}

	// Second run pays the same claims down instead of creating new ones.
	result, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(f.claims.claims) != 2 {
		t.Fatalf("expected 2 claims after second run, got %d", len(f.claims.claims))
	}
	if !result.AmountDistributed.Equal(dec("50.00")) {
		t.Fatalf("expected 50.00 distributed, got %s", result.AmountDistributed)
	}
	for _, c := range f.claims.claims {
		if c.State() != domain.ClaimExhausted {
			t.Fatalf("expected claim exhausted after two half payments, has %s left", c.Value)
		}
	}

	// A third run finds nothing outstanding.
	result, err = f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if !result.AmountDistributed.IsZero() {
		t.Fatalf("expected nothing distributed, got %s", result.AmountDistributed)
	}
}

func TestRunValueEquation_OnceClaimsExhaustOnFirstPayment(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	alice := f.agents.add("Alice", "acct:alice")
	f.addContribution(alice, "80", base)

	ve := f.addEquation("50", domain.ClaimOnce)

	result, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	// The payment was smaller than the claim; it still kills it.
	if !result.AmountDistributed.Equal(dec("50.00")) {
		t.Fatalf("expected 50.00 distributed, got %s", result.AmountDistributed)
	}
	if f.claims.claims[0].State() != domain.ClaimExhausted {
		t.Fatal("expected once claim exhausted after first payment")
	}

	result, err = f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !result.AmountDistributed.IsZero() {
		t.Fatalf("expected nothing distributed on second run, got %s", result.AmountDistributed)
	}
}

func TestRunValueEquation_EquityClaimsArePerpetual(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	alice := f.agents.add("Alice", "acct:alice")
	bob := f.agents.add("Bob", "acct:bob")
	f.addContribution(alice, "75", base)
	f.addContribution(bob, "25", base.Add(time.Hour))

	ve := f.addEquation("100", domain.ClaimEquityLike)

	for run := 0; run < 2; run++ {
		result, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if !result.AmountDistributed.Equal(dec("100.00")) {
			t.Fatalf("run %d: expected 100.00 distributed, got %s", run, result.AmountDistributed)
		}
	}

	// Equity claims never shrink.
	for _, c := range f.claims.claims {
		if !c.Value.Equal(c.OriginalValue) {
			t.Fatalf("expected equity claim untouched, got %s of %s", c.Value, c.OriginalValue)
		}
	}
}

func TestRunValueEquation_ResidualGoesToOnePayout(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, name := range []string{"Alice", "Bob", "Carol"} {
		a := f.agents.add(name, "acct:"+name)
		f.addContribution(a, "50", base.Add(time.Duration(i)*time.Hour))
	}

	ve := f.addEquation("100", domain.ClaimDebtLike)

	// 100 over three equal claims: 33.33 each plus a 0.01 residual.
	result, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.AmountDistributed.Equal(dec("100.00")) {
		t.Fatalf("expected exactly 100.00 distributed, got %s", result.AmountDistributed)
	}

	adjusted := 0
	total := decimal.Zero
	for _, ev := range result.DistributionEvents {
		total = total.Add(ev.Value)
		if ev.Value.Equal(dec("33.34")) {
			adjusted++
		}
	}
	if !total.Equal(dec("100.00")) {
		t.Fatalf("expected distribution events to sum to 100.00, got %s", total)
	}
	if adjusted != 1 {
		t.Fatalf("expected exactly one payout to absorb the residual, got %d", adjusted)
	}
}

func TestRunValueEquation_MissingSettlementAccount(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()

	broke := f.agents.add("No Account", "")
	f.addContribution(broke, "50", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	ve := f.addEquation("100", domain.ClaimDebtLike)

	_, err := f.svc.RunValueEquation(ctx, ve.ID, dec("100"), nil)
	var missing *MissingAccountError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingAccountError, got %v", err)
	}
	if missing.AgentID != broke.ID {
		t.Fatalf("expected error to name the unpayable agent")
	}
}

func TestRunValueEquation_InputValidation(t *testing.T) {
	f := newDistroFixture()
	ctx := context.Background()

	if _, err := f.svc.RunValueEquation(ctx, uuid.New(), decimal.Zero, nil); err != ErrNonPositiveAmount {
		t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
	}
	if _, err := f.svc.RunValueEquation(ctx, uuid.New(), dec("10"), nil); err != ErrEquationNotFound {
		t.Fatalf("expected ErrEquationNotFound, got %v", err)
	}

	empty := f.equations.add(&domain.ValueEquation{Name: "empty", ContextAgentID: f.network.ID})
	if _, err := f.svc.RunValueEquation(ctx, empty.ID, dec("10"), nil); err != ErrNoBuckets {
		t.Fatalf("expected ErrNoBuckets, got %v", err)
	}
}
