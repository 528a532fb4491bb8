package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/tier"
)

// PGStore persists subscriptions in the subscriptions table. The
// one-active-subscription-per-user rule is backed by a partial unique index
// over entitled statuses, and Update carries the optimistic version check.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore over the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const subColumns = `id, user_id, tier, billing_cycle, status, base_price::text,
	monthly_credits, current_period_start, current_period_end,
	trial_ends_at, cancelled_at, created_at, updated_at, version`

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	row := q.QueryRow(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	return sub, nil
}

func (s *PGStore) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	row := q.QueryRow(ctx, `
		SELECT `+subColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status IN ('trial', 'active')
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	sub, err := scanSubscription(row)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query active subscription: %w", err)
	}
	return sub, nil
}

func (s *PGStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	rows, err := q.Query(ctx, `
		SELECT `+subColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query subscription history: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query subscription history: %w", err)
	}
	return out, nil
}

func (s *PGStore) Create(ctx context.Context, sub *Subscription) error {
	q := pg.QuerierFromContext(ctx, s.pool)

	_, err := q.Exec(ctx, `
		INSERT INTO subscriptions
			(id, user_id, tier, billing_cycle, status, base_price, monthly_credits,
			 current_period_start, current_period_end, trial_ends_at, cancelled_at,
			 created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.UserID, string(sub.Tier), string(sub.BillingCycle), string(sub.Status),
		sub.BasePrice, sub.MonthlyCredits, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialEndsAt, sub.CancelledAt, sub.CreatedAt, sub.UpdatedAt, sub.Version)
	if err != nil {
		if pg.IsUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", ErrSubscriptionExists, sub.UserID)
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, sub *Subscription) error {
	q := pg.QuerierFromContext(ctx, s.pool)

	tag, err := q.Exec(ctx, `
		UPDATE subscriptions
		SET tier = $3, billing_cycle = $4, status = $5, base_price = $6,
		    monthly_credits = $7, current_period_start = $8, current_period_end = $9,
		    trial_ends_at = $10, cancelled_at = $11, updated_at = $12,
		    version = version + 1
		WHERE id = $1 AND version = $2`,
		sub.ID, sub.Version, string(sub.Tier), string(sub.BillingCycle), string(sub.Status),
		sub.BasePrice, sub.MonthlyCredits, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialEndsAt, sub.CancelledAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost optimistic race from a missing row.
		var exists bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, sub.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	sub.Version++
	return nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub       Subscription
		tierName  string
		cycle     string
		status    string
		basePrice string
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &tierName, &cycle, &status, &basePrice,
		&sub.MonthlyCredits, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.TrialEndsAt, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt, &sub.Version); err != nil {
		return nil, err
	}

	sub.Tier = tier.Tier(tierName)
	sub.BillingCycle = BillingCycle(cycle)
	sub.Status = Status(status)

	price, err := decimal.NewFromString(basePrice)
	if err != nil {
		return nil, fmt.Errorf("parse base price: %w", err)
	}
	sub.BasePrice = price
	return &sub, nil
}

// PGEventStore persists proration events in the proration_events table.
type PGEventStore struct {
	pool *pgxpool.Pool
}

// NewPGEventStore creates a PGEventStore over the given pool.
func NewPGEventStore(pool *pgxpool.Pool) *PGEventStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PGEventStore{pool: pool}
}

const eventColumns = `id, user_id, subscription_id, from_tier, to_tier, change_type,
	days_remaining, days_in_cycle, unused_credit_value_usd::text,
	new_tier_prorated_cost_usd::text, net_charge_usd::text,
	effective_at, status, created_at, updated_at`

func (s *PGEventStore) Record(ctx context.Context, ev *ProrationEvent) error {
	q := pg.QuerierFromContext(ctx, s.pool)

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
		ev.UpdatedAt = ev.CreatedAt
	}

	_, err := q.Exec(ctx, `
		INSERT INTO proration_events
			(id, user_id, subscription_id, from_tier, to_tier, change_type,
			 days_remaining, days_in_cycle, unused_credit_value_usd,
			 new_tier_prorated_cost_usd, net_charge_usd, effective_at, status,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		ev.ID, ev.UserID, ev.SubscriptionID, string(ev.FromTier), string(ev.ToTier),
		string(ev.ChangeType), ev.DaysRemaining, ev.DaysInCycle,
		ev.UnusedCreditValue, ev.NewProratedCost, ev.NetCharge,
		ev.EffectiveAt, string(ev.Status), ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert proration event: %w", err)
	}
	return nil
}

func (s *PGEventStore) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]ProrationEvent, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+`
		FROM proration_events
		WHERE subscription_id = $1
		ORDER BY created_at`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("query proration events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PGEventStore) ListPending(ctx context.Context, limit int) ([]ProrationEvent, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	if limit <= 0 {
		limit = 100
	}
	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+`
		FROM proration_events
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending proration events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]ProrationEvent, error) {
	var out []ProrationEvent
	for rows.Next() {
		var (
			ev         ProrationEvent
			fromTier   string
			toTier     string
			changeType string
			status     string
			unused     string
			cost       string
			net        string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SubscriptionID, &fromTier, &toTier,
			&changeType, &ev.DaysRemaining, &ev.DaysInCycle, &unused, &cost, &net,
			&ev.EffectiveAt, &status, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan proration event: %w", err)
		}

		ev.FromTier = tier.Tier(fromTier)
		ev.ToTier = tier.Tier(toTier)
		ev.ChangeType = tier.Direction(changeType)
		ev.Status = EventStatus(status)

		var err error
		if ev.UnusedCreditValue, err = decimal.NewFromString(unused); err != nil {
			return nil, fmt.Errorf("parse unused credit value: %w", err)
		}
		if ev.NewProratedCost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("parse prorated cost: %w", err)
		}
		if ev.NetCharge, err = decimal.NewFromString(net); err != nil {
			return nil, fmt.Errorf("parse net charge: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query proration events: %w", err)
	}
	return out, nil
}
