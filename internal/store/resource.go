package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/valuenetwork/valueflow/internal/domain"
)

type ResourceStore struct {
	db *pgxpool.Pool
}

func NewResourceStore(db *pgxpool.Pool) *ResourceStore {
	return &ResourceStore{db: db}
}

const resourceColumns = `id, resource_type_id, identifier, quantity, value_per_unit, value_per_unit_of_use, stage_id, exchange_stage_id, valued_at, created_at, updated_at`

func scanResource(row pgx.Row, r *domain.Resource) error {
	return row.Scan(&r.ID, &r.ResourceTypeID, &r.Identifier, &r.Quantity, &r.ValuePerUnit, &r.ValuePerUnitOfUse, &r.StageID, &r.ExchangeStageID, &r.ValuedAt, &r.CreatedAt, &r.UpdatedAt)
}

func (s *ResourceStore) Create(ctx context.Context, r *domain.Resource) error {
	return target(ctx, s.db).QueryRow(ctx,
		`INSERT INTO resources (resource_type_id, identifier, quantity, value_per_unit, value_per_unit_of_use, stage_id, exchange_stage_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		r.ResourceTypeID, r.Identifier, r.Quantity, r.ValuePerUnit, r.ValuePerUnitOfUse, r.StageID, r.ExchangeStageID,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (s *ResourceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	r := &domain.Resource{}
	err := scanResource(target(ctx, s.db).QueryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id), r)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *ResourceStore) UpdateValuePerUnit(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	tag, err := target(ctx, s.db).Exec(ctx,
		`UPDATE resources SET value_per_unit = $1, valued_at = NOW(), updated_at = NOW() WHERE id = $2`,
		value, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale returns resources never valued, or with events recorded against
// them after their last valuation. Only directly linked events are
// considered; upstream changes surface once their own resource is revalued.
func (s *ResourceStore) ListStale(ctx context.Context, limit int) ([]domain.Resource, error) {
	rows, err := target(ctx, s.db).Query(ctx,
		`SELECT `+resourceColumns+` FROM resources r
		 WHERE r.valued_at IS NULL
		    OR EXISTS (SELECT 1 FROM events e WHERE e.resource_id = r.id AND e.created_at > r.valued_at)
		 ORDER BY r.updated_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []domain.Resource
	for rows.Next() {
		var r domain.Resource
		if err := scanResource(rows, &r); err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}
