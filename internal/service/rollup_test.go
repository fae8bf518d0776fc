package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/valuenetwork/valueflow/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// rollUpFixture is the common wiring for roll-up tests.
type rollUpFixture struct {
	events    *mockEventStore
	resources *mockResourceStore
	processes *mockProcessStore
	svc       *RollUpService
}

func newRollUpFixture() *rollUpFixture {
	f := &rollUpFixture{
		events:    newMockEventStore(),
		resources: newMockResourceStore(),
		processes: newMockProcessStore(),
	}
	f.svc = NewRollUpService(f.events, f.resources, f.processes, zap.NewNop())
	return f
}

func TestRollUp_ProcessInputs(t *testing.T) {
	f := newRollUpFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	herb := f.resources.add(&domain.Resource{Quantity: dec("10")})
	oil := f.resources.add(&domain.Resource{Quantity: dec("1")})
	process := f.processes.add(&domain.Process{Name: "distill"})

	// Herb lot was contributed: 10 units for 25.
	herbID := herb.ID
	f.events.add(&domain.Event{
		Kind: domain.KindResourceContribution, ResourceID: &herbID,
		Quantity: dec("10"), Value: dec("25"), EventDate: base,
	})

	// 5 hours of work at 2/hour plus the whole herb lot in, 1 unit of oil out.
	procID := process.ID
	f.events.add(&domain.Event{
		Kind: domain.KindWork, ProcessID: &procID,
		Quantity: dec("5"), Value: dec("10"), EventDate: base.Add(time.Hour),
	})
	f.events.add(&domain.Event{
		Kind: domain.KindConsume, ProcessID: &procID, ResourceID: &herbID,
		Quantity: dec("2"), EventDate: base.Add(2 * time.Hour),
	})
	oilID := oil.ID
	f.events.add(&domain.Event{
		Kind: domain.KindProduce, ProcessID: &procID, ResourceID: &oilID,
		Quantity: dec("1"), EventDate: base.Add(3 * time.Hour),
	})

	// work 10 + consume 2 units at 2.50/unit = 15 per unit of oil
	v, err := f.svc.RollUp(ctx, oilID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !v.Equal(dec("15.00")) {
		t.Fatalf("expected 15.00, got %s", v)
	}
	if !oil.ValuePerUnit.Equal(dec("15.00")) {
		t.Fatalf("expected persisted value 15.00, got %s", oil.ValuePerUnit)
	}
	if oil.ValuedAt == nil {
		t.Fatal("expected valued_at to be stamped")
	}
}

func TestRollUp_SpreadsOverProducedQuantity(t *testing.T) {
	f := newRollUpFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	batch := f.resources.add(&domain.Resource{Quantity: dec("3")})
	process := f.processes.add(&domain.Process{Name: "bake"})

	procID := process.ID
	f.events.add(&domain.Event{
		Kind: domain.KindWork, ProcessID: &procID,
		Quantity: dec("1"), Value: dec("15"), EventDate: base,
	})
	batchID := batch.ID
	f.events.add(&domain.Event{
		Kind: domain.KindProduce, ProcessID: &procID, ResourceID: &batchID,
		Quantity: dec("3"), EventDate: base.Add(time.Hour),
	})

	v, err := f.svc.RollUp(ctx, batchID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !v.Equal(dec("5.00")) {
		t.Fatalf("expected 5.00 per unit, got %s", v)
	}
}

func TestRollUp_WeightedAverage(t *testing.T) {
	f := newRollUpFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	res := f.resources.add(&domain.Resource{Quantity: dec("20")})
	resID := res.ID

	// 10 units at 2, then 10 units at 4: average 3.
	f.events.add(&domain.Event{
		Kind: domain.KindResourceContribution, ResourceID: &resID,
		Quantity: dec("10"), Value: dec("20"), EventDate: base,
	})
	f.events.add(&domain.Event{
		Kind: domain.KindResourceContribution, ResourceID: &resID,
		Quantity: dec("10"), Value: dec("40"), EventDate: base.Add(time.Hour),
	})

	v, err := f.svc.RollUp(ctx, resID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !v.Equal(dec("3.00")) {
		t.Fatalf("expected 3.00, got %s", v)
	}
}

func TestRollUp_CitationsPricedAfterBase(t *testing.T) {
	f := newRollUpFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	design := f.resources.add(&domain.Resource{})
	out := f.resources.add(&domain.Resource{Quantity: dec("1")})
	process := f.processes.add(&domain.Process{Name: "fabricate"})

	procID := process.ID
	designID := design.ID
	// Citation recorded first; it must still be priced after the work below.
	f.events.add(&domain.Event{
		Kind: domain.KindCite, ProcessID: &procID, ResourceID: &designID,
		Quantity: dec("10"), EventDate: base,
	})
	f.events.add(&domain.Event{
		Kind: domain.KindWork, ProcessID: &procID,
		Quantity: dec("10"), Value: dec("100"), EventDate: base.Add(time.Hour),
	})
	outID := out.ID
	f.events.add(&domain.Event{
		Kind: domain.KindProduce, ProcessID: &procID, ResourceID: &outID,
		Quantity: dec("1"), EventDate: base.Add(2 * time.Hour),
	})

	// base 100, citation 10% of base: 110
	v, err := f.svc.RollUp(ctx, outID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !v.Equal(dec("110.00")) {
		t.Fatalf("expected 110.00, got %s", v)
	}
}

func TestRollUp_NeverProducedIsZero(t *testing.T) {
	f := newRollUpFixture()
	res := f.resources.add(&domain.Resource{Quantity: dec("5")})

	v, err := f.svc.RollUp(context.Background(), res.ID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !v.IsZero() {
		t.Fatalf("expected zero, got %s", v)
	}
}

func TestRollUp_ResourceNotFound(t *testing.T) {
	f := newRollUpFixture()
	_, err := f.svc.RollUp(context.Background(), uuid.New(), nil)
	if err != ErrResourceNotFound {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestComputeValue_CycleWarning(t *testing.T) {
	f := newRollUpFixture()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// A process that consumes the very resource it produces.
	res := f.resources.add(&domain.Resource{Quantity: dec("1"), ValuePerUnit: dec("7")})
	process := f.processes.add(&domain.Process{Name: "ouroboros"})

	procID := process.ID
	resID := res.ID
	f.events.add(&domain.Event{
		Kind: domain.KindConsume, ProcessID: &procID, ResourceID: &resID,
		Quantity: dec("1"), EventDate: base,
	})
	f.events.add(&domain.Event{
		Kind: domain.KindProduce, ProcessID: &procID, ResourceID: &resID,
		Quantity: dec("1"), EventDate: base.Add(time.Hour),
	})

	v, tr, err := f.svc.ComputeValue(ctx, resID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tr.Cycles) == 0 {
		t.Fatal("expected a cycle warning")
	}
	// Revisit falls back to the stored value rather than recursing.
	if !v.Equal(dec("7")) {
		t.Fatalf("expected 7, got %s", v)
	}
}
