package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valuenetwork/valueflow/internal/domain"
)

type ProcessStore struct {
	db *pgxpool.Pool
}

func NewProcessStore(db *pgxpool.Pool) *ProcessStore {
	return &ProcessStore{db: db}
}

func (s *ProcessStore) Create(ctx context.Context, p *domain.Process) error {
	q := target(ctx, s.db)
	return q.QueryRow(ctx,
		`INSERT INTO processes (name, context_agent_id, process_type_id, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		p.Name, p.ContextAgentID, p.ProcessTypeID, p.StartDate, p.EndDate,
	).Scan(&p.ID, &p.CreatedAt)
}

func (s *ProcessStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Process, error) {
	q := target(ctx, s.db)
	p := &domain.Process{}
	err := q.QueryRow(ctx,
		`SELECT id, name, context_agent_id, process_type_id, start_date, end_date, created_at
		 FROM processes WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.ContextAgentID, &p.ProcessTypeID, &p.StartDate, &p.EndDate, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

type ExchangeStore struct {
	db *pgxpool.Pool
}

func NewExchangeStore(db *pgxpool.Pool) *ExchangeStore {
	return &ExchangeStore{db: db}
}

func (s *ExchangeStore) Create(ctx context.Context, e *domain.Exchange) error {
	q := target(ctx, s.db)
	return q.QueryRow(ctx,
		`INSERT INTO exchanges (name, context_agent_id, exchange_date)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		e.Name, e.ContextAgentID, e.ExchangeDate,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *ExchangeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Exchange, error) {
	q := target(ctx, s.db)
	e := &domain.Exchange{}
	err := q.QueryRow(ctx,
		`SELECT id, name, context_agent_id, exchange_date, created_at
		 FROM exchanges WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.ContextAgentID, &e.ExchangeDate, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}
