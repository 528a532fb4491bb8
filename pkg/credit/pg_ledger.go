package credit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PGLedger persists allocations in the credit_allocations table. The table
// is insert-only; there is no update or delete path.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger creates a PGLedger over the given pool.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	if pool == nil {
		panic("credit: pgx pool is required")
	}
	return &PGLedger{pool: pool}
}

func (l *PGLedger) Record(ctx context.Context, a *Allocation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	q := pg.QuerierFromContext(ctx, l.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO credit_allocations
			(id, user_id, subscription_id, amount, period_start, period_end, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, a.SubscriptionID, a.Amount, a.PeriodStart, a.PeriodEnd, string(a.Source), a.CreatedAt)
	if err != nil {
		return errors.Join(ErrFailedToRecord, err)
	}
	return nil
}

func (l *PGLedger) AllocatedInPeriod(ctx context.Context, userID uuid.UUID, start, end time.Time) (int64, error) {
	q := pg.QuerierFromContext(ctx, l.pool)

	var sum int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_allocations
		WHERE user_id = $1 AND period_start < $3 AND period_end > $2`,
		userID, start, end).Scan(&sum)
	if err != nil {
		return 0, errors.Join(ErrFailedToQuery, err)
	}
	return sum, nil
}

func (l *PGLedger) ListByUser(ctx context.Context, userID uuid.UUID) ([]Allocation, error) {
	q := pg.QuerierFromContext(ctx, l.pool)

	rows, err := q.Query(ctx, `
		SELECT id, user_id, subscription_id, amount, period_start, period_end, source, created_at
		FROM credit_allocations
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	defer rows.Close()
	return collectAllocations(rows)
}

func (l *PGLedger) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]Allocation, error) {
	q := pg.QuerierFromContext(ctx, l.pool)

	rows, err := q.Query(ctx, `
		SELECT id, user_id, subscription_id, amount, period_start, period_end, source, created_at
		FROM credit_allocations
		WHERE subscription_id = $1
		ORDER BY created_at`, subscriptionID)
	if err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	defer rows.Close()
	return collectAllocations(rows)
}

func collectAllocations(rows pgx.Rows) ([]Allocation, error) {
	var out []Allocation
	for rows.Next() {
		var (
			a      Allocation
			source string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.SubscriptionID, &a.Amount,
			&a.PeriodStart, &a.PeriodEnd, &source, &a.CreatedAt); err != nil {
			return nil, errors.Join(ErrFailedToQuery, err)
		}
		a.Source = Source(source)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToQuery, err)
	}
	return out, nil
}
