package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PGStore serves tier configs from the tier_configs table. Each catalog
// change inserts a new row and deactivates the previous one, so at most one
// row per tier is active at a time and retired prices stay queryable.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PGStore over the given pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("tier: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

const tierColumns = `tier, name, monthly_price::text, annual_price::text,
	monthly_credits, max_rollover, trial_days, features, active`

// Get returns the newest row for a tier, active or not; callers requiring a
// sellable tier check Config.Active.
func (s *PGStore) Get(ctx context.Context, t Tier) (*Config, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	row := q.QueryRow(ctx, `
		SELECT `+tierColumns+`
		FROM tier_configs
		WHERE tier = $1
		ORDER BY active DESC, created_at DESC
		LIMIT 1`, string(t))

	cfg, err := scanConfig(row)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrTierNotFound
		}
		return nil, errors.Join(ErrFailedToQueryCatalog, err)
	}
	return cfg, nil
}

// List returns all active catalog rows ordered by tier level.
func (s *PGStore) List(ctx context.Context) ([]Config, error) {
	q := pg.QuerierFromContext(ctx, s.pool)

	rows, err := q.Query(ctx, `
		SELECT `+tierColumns+`
		FROM tier_configs
		WHERE active
		ORDER BY tier`)
	if err != nil {
		return nil, errors.Join(ErrFailedToQueryCatalog, err)
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, errors.Join(ErrFailedToQueryCatalog, err)
		}
		out = append(out, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToQueryCatalog, err)
	}
	return out, nil
}

func scanConfig(row pgx.Row) (*Config, error) {
	var (
		cfg          Config
		tierName     string
		monthlyPrice string
		annualPrice  string
		featuresRaw  []byte
	)
	if err := row.Scan(&tierName, &cfg.Name, &monthlyPrice, &annualPrice,
		&cfg.MonthlyCredits, &cfg.MaxRollover, &cfg.TrialDays, &featuresRaw, &cfg.Active); err != nil {
		return nil, err
	}
	cfg.Tier = Tier(tierName)

	var err error
	if cfg.MonthlyPrice, err = decimal.NewFromString(monthlyPrice); err != nil {
		return nil, fmt.Errorf("parse monthly price: %w", err)
	}
	if cfg.AnnualPrice, err = decimal.NewFromString(annualPrice); err != nil {
		return nil, fmt.Errorf("parse annual price: %w", err)
	}

	// The feature map is a JSONB blob only at this edge; everything above
	// works with the typed map.
	cfg.Features = make(map[Feature]bool)
	if len(featuresRaw) > 0 {
		if err := json.Unmarshal(featuresRaw, &cfg.Features); err != nil {
			return nil, fmt.Errorf("parse features: %w", err)
		}
	}
	return &cfg, nil
}
