package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
)

type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `id, kind, agent_id, to_agent_id, context_agent_id, resource_id, resource_type_id, process_id, exchange_id, order_id, quantity, value, price, is_contribution, event_date, created_at`

func scanEvent(row pgx.Row, e *domain.Event) error {
	return row.Scan(&e.ID, &e.Kind, &e.AgentID, &e.ToAgentID, &e.ContextAgentID, &e.ResourceID, &e.ResourceTypeID, &e.ProcessID, &e.ExchangeID, &e.OrderID, &e.Quantity, &e.Value, &e.Price, &e.IsContribution, &e.EventDate, &e.CreatedAt)
}

func (s *EventStore) Create(ctx context.Context, e *domain.Event) error {
	return target(ctx, s.db).QueryRow(ctx,
		`INSERT INTO events (kind, agent_id, to_agent_id, context_agent_id, resource_id, resource_type_id, process_id, exchange_id, order_id, quantity, value, price, is_contribution, event_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING id, created_at`,
		e.Kind, e.AgentID, e.ToAgentID, e.ContextAgentID, e.ResourceID, e.ResourceTypeID, e.ProcessID, e.ExchangeID, e.OrderID, e.Quantity, e.Value, e.Price, e.IsContribution, e.EventDate,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	e := &domain.Event{}
	err := scanEvent(target(ctx, s.db).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id), e)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *EventStore) UpdateValue(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	tag, err := target(ctx, s.db).Exec(ctx,
		`UPDATE events SET value = $1 WHERE id = $2`, value, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// queryEvents runs a query returning full event rows in deterministic
// (event_date, id) order; all traversal reads go through it.
func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := target(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *EventStore) Produced(ctx context.Context, resourceID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE kind = 'produce' AND resource_id = $1
		 ORDER BY event_date, id`, resourceID)
}

func (s *EventStore) Contributions(ctx context.Context, resourceID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE kind = 'resource-contribution' AND resource_id = $1
		 ORDER BY event_date, id`, resourceID)
}

func (s *EventStore) Receipts(ctx context.Context, resourceID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE kind = 'receive' AND resource_id = $1
		 ORDER BY event_date, id`, resourceID)
}

func (s *EventStore) ProcessInputs(ctx context.Context, processID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE process_id = $1 AND kind <> 'produce'
		 ORDER BY event_date, id`, processID)
}

func (s *EventStore) ProcessOutputs(ctx context.Context, processID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE process_id = $1 AND kind = 'produce'
		 ORDER BY event_date, id`, processID)
}

func (s *EventStore) ByExchange(ctx context.Context, exchangeID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE exchange_id = $1
		 ORDER BY event_date, id`, exchangeID)
}

func (s *EventStore) ShipmentsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Event, error) {
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE kind = 'shipment' AND order_id = $1
		 ORDER BY event_date, id`, orderID)
}

func (s *EventStore) FilterContributions(ctx context.Context, f domain.ContributionFilter) ([]domain.Event, error) {
	conditions := []string{"is_contribution = TRUE"}
	var args []any

	if f.ContextAgentID != nil {
		conditions = append(conditions, fmt.Sprintf("context_agent_id = $%d", len(args)+1))
		args = append(args, *f.ContextAgentID)
	}
	if len(f.ProcessIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("process_id = ANY($%d)", len(args)+1))
		args = append(args, f.ProcessIDs)
	}
	if f.Start != nil {
		conditions = append(conditions, fmt.Sprintf("event_date >= $%d", len(args)+1))
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conditions = append(conditions, fmt.Sprintf("event_date <= $%d", len(args)+1))
		args = append(args, *f.End)
	}

	query := fmt.Sprintf(
		`SELECT `+eventColumns+` FROM events WHERE %s ORDER BY event_date, id`,
		strings.Join(conditions, " AND "))
	return s.queryEvents(ctx, query, args...)
}
