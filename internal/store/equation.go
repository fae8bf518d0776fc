package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valuenetwork/valueflow/internal/domain"
)

type EquationStore struct {
	db *pgxpool.Pool
}

func NewEquationStore(db *pgxpool.Pool) *EquationStore {
	return &EquationStore{db: db}
}

// Create stores the equation with its nested buckets and rules.
func (s *EquationStore) Create(ctx context.Context, ve *domain.ValueEquation) error {
	q := target(ctx, s.db)

	err := q.QueryRow(ctx,
		`INSERT INTO value_equations (name, context_agent_id, live)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		ve.Name, ve.ContextAgentID, ve.Live,
	).Scan(&ve.ID, &ve.CreatedAt)
	if err != nil {
		return err
	}

	for bi := range ve.Buckets {
		b := &ve.Buckets[bi]
		b.EquationID = ve.ID
		err := q.QueryRow(ctx,
			`INSERT INTO value_equation_buckets (equation_id, sequence, name, percentage, distribution_agent_id, filter_method, percentage_behavior)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			b.EquationID, b.Sequence, b.Name, b.Percentage, b.DistributionAgentID, b.FilterMethod, b.PercentageBehavior,
		).Scan(&b.ID, &b.CreatedAt)
		if err != nil {
			return err
		}

		for ri := range b.Rules {
			r := &b.Rules[ri]
			r.BucketID = b.ID
			err := q.QueryRow(ctx,
				`INSERT INTO value_equation_bucket_rules (bucket_id, event_kind, resource_type_id, claim_rule_type, claim_equation)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING id, created_at`,
				r.BucketID, r.EventKind, r.ResourceTypeID, r.ClaimRuleType, r.ClaimEquation,
			).Scan(&r.ID, &r.CreatedAt)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// GetByID loads the equation with buckets in sequence order and their rules.
func (s *EquationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ValueEquation, error) {
	q := target(ctx, s.db)

	ve := &domain.ValueEquation{}
	err := q.QueryRow(ctx,
		`SELECT id, name, context_agent_id, live, created_at
		 FROM value_equations WHERE id = $1`, id,
	).Scan(&ve.ID, &ve.Name, &ve.ContextAgentID, &ve.Live, &ve.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT id, equation_id, sequence, name, percentage, distribution_agent_id, filter_method, percentage_behavior, created_at
		 FROM value_equation_buckets WHERE equation_id = $1 ORDER BY sequence, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bucketIndex := make(map[uuid.UUID]int)
	for rows.Next() {
		var b domain.ValueEquationBucket
		if err := rows.Scan(&b.ID, &b.EquationID, &b.Sequence, &b.Name, &b.Percentage, &b.DistributionAgentID, &b.FilterMethod, &b.PercentageBehavior, &b.CreatedAt); err != nil {
			return nil, err
		}
		bucketIndex[b.ID] = len(ve.Buckets)
		ve.Buckets = append(ve.Buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ruleRows, err := q.Query(ctx,
		`SELECT r.id, r.bucket_id, r.event_kind, r.resource_type_id, r.claim_rule_type, r.claim_equation, r.created_at
		 FROM value_equation_bucket_rules r
		 JOIN value_equation_buckets b ON b.id = r.bucket_id
		 WHERE b.equation_id = $1
		 ORDER BY r.created_at, r.id`, id)
	if err != nil {
		return nil, err
	}
	defer ruleRows.Close()

	for ruleRows.Next() {
		var r domain.ValueEquationBucketRule
		if err := ruleRows.Scan(&r.ID, &r.BucketID, &r.EventKind, &r.ResourceTypeID, &r.ClaimRuleType, &r.ClaimEquation, &r.CreatedAt); err != nil {
			return nil, err
		}
		if bi, ok := bucketIndex[r.BucketID]; ok {
			ve.Buckets[bi].Rules = append(ve.Buckets[bi].Rules, r)
		}
	}
	return ve, ruleRows.Err()
}
