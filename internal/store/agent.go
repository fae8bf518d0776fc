package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valuenetwork/valueflow/internal/domain"
)

type AgentStore struct {
	db *pgxpool.Pool
}

func NewAgentStore(db *pgxpool.Pool) *AgentStore {
	return &AgentStore{db: db}
}

func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	q := target(ctx, s.db)
	return q.QueryRow(ctx,
		`INSERT INTO agents (name, settlement_account)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		a.Name, a.SettlementAccount,
	).Scan(&a.ID, &a.CreatedAt)
}

func (s *AgentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Agent, error) {
	q := target(ctx, s.db)
	a := &domain.Agent{}
	err := q.QueryRow(ctx,
		`SELECT id, name, settlement_account, created_at
		 FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.SettlementAccount, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}
