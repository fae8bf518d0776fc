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

type ClaimStore struct {
	db *pgxpool.Pool
}

func NewClaimStore(db *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{db: db}
}

const claimColumns = `id, bucket_rule_id, event_id, agent_id, against_agent_id, value, original_value, claim_date, created_at`

func scanClaim(row pgx.Row, c *domain.Claim) error {
	return row.Scan(&c.ID, &c.BucketRuleID, &c.EventID, &c.AgentID, &c.AgainstAgentID, &c.Value, &c.OriginalValue, &c.ClaimDate, &c.CreatedAt)
}

// Create inserts a new claim. The claims table carries a uniqueness
// constraint on (event_id, bucket_rule_id): a second creation attempt for
// the same pair fails instead of silently double-claiming.
func (s *ClaimStore) Create(ctx context.Context, c *domain.Claim) error {
	return target(ctx, s.db).QueryRow(ctx,
		`INSERT INTO claims (bucket_rule_id, event_id, agent_id, against_agent_id, value, original_value, claim_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		c.BucketRuleID, c.EventID, c.AgentID, c.AgainstAgentID, c.Value, c.OriginalValue, c.ClaimDate,
	).Scan(&c.ID, &c.CreatedAt)
}

func (s *ClaimStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	c := &domain.Claim{}
	err := scanClaim(target(ctx, s.db).QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`, id), c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// GetByEventAndRule locks the row when called inside a transaction, so two
// concurrent distribution runs cannot double-spend the same claim.
func (s *ClaimStore) GetByEventAndRule(ctx context.Context, eventID, ruleID uuid.UUID) (*domain.Claim, error) {
	c := &domain.Claim{}
	err := scanClaim(target(ctx, s.db).QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE event_id = $1 AND bucket_rule_id = $2
		 FOR UPDATE`, eventID, ruleID), c)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *ClaimStore) UpdateValue(ctx context.Context, id uuid.UUID, value decimal.Decimal) error {
	tag, err := target(ctx, s.db).Exec(ctx,
		`UPDATE claims SET value = $1 WHERE id = $2`, value, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ClaimStore) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]domain.Claim, error) {
	rows, err := target(ctx, s.db).Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE agent_id = $1 ORDER BY claim_date, id`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		var c domain.Claim
		if err := scanClaim(rows, &c); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *ClaimStore) CreateClaimEvent(ctx context.Context, ce *domain.ClaimEvent) error {
	return target(ctx, s.db).QueryRow(ctx,
		`INSERT INTO claim_events (claim_id, event_id, effect, value, event_date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		ce.ClaimID, ce.EventID, ce.Effect, ce.Value, ce.EventDate,
	).Scan(&ce.ID, &ce.CreatedAt)
}

func (s *ClaimStore) ListClaimEvents(ctx context.Context, claimID uuid.UUID) ([]domain.ClaimEvent, error) {
	rows, err := target(ctx, s.db).Query(ctx,
		`SELECT id, claim_id, event_id, effect, value, event_date, created_at
		 FROM claim_events WHERE claim_id = $1 ORDER BY event_date, id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ClaimEvent
	for rows.Next() {
		var ce domain.ClaimEvent
		if err := rows.Scan(&ce.ID, &ce.ClaimID, &ce.EventID, &ce.Effect, &ce.Value, &ce.EventDate, &ce.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ce)
	}
	return events, rows.Err()
}
