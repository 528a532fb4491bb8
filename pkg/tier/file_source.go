package tier

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FileSource loads a tier catalog from a YAML file. Intended for deployments
// that version their catalog alongside code; the admin-managed Postgres
// catalog is the alternative.
//
// Expected document shape:
//
//	tiers:
//	  - tier: pro
//	    name: Pro
//	    monthly_price: "29.99"
//	    annual_price: "299.90"
//	    monthly_credits: 50000
//	    max_rollover: 10000
//	    trial_days: 14
//	    features:
//	      api_access: true
//	    active: true
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type catalogDoc struct {
	Tiers []tierDoc `yaml:"tiers"`
}

type tierDoc struct {
	Tier           string          `yaml:"tier"`
	Name           string          `yaml:"name"`
	MonthlyPrice   string          `yaml:"monthly_price"`
	AnnualPrice    string          `yaml:"annual_price"`
	MonthlyCredits int64           `yaml:"monthly_credits"`
	MaxRollover    int64           `yaml:"max_rollover"`
	TrialDays      int             `yaml:"trial_days"`
	Features       map[string]bool `yaml:"features"`
	Active         bool            `yaml:"active"`
}

// Load parses the catalog file into a MemoryStore.
func (f *FileSource) Load(_ context.Context) (*MemoryStore, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	var doc catalogDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	store := NewMemoryStore()
	seen := make(map[Tier]struct{}, len(doc.Tiers))
	for _, td := range doc.Tiers {
		cfg, err := td.toConfig()
		if err != nil {
			return nil, errors.Join(ErrInvalidCatalog, err)
		}
		if _, dup := seen[cfg.Tier]; dup {
			return nil, errors.Join(ErrInvalidCatalog,
				fmt.Errorf("duplicate tier %q", cfg.Tier))
		}
		seen[cfg.Tier] = struct{}{}
		store.Put(cfg)
	}
	return store, nil
}

func (td tierDoc) toConfig() (Config, error) {
	if td.Tier == "" {
		return Config{}, errors.New("tier name is required")
	}
	if td.MonthlyCredits < 0 {
		return Config{}, fmt.Errorf("tier %q has negative monthly credits", td.Tier)
	}
	if td.TrialDays < 0 {
		return Config{}, fmt.Errorf("tier %q has negative trial days", td.Tier)
	}

	monthly, err := parsePrice(td.MonthlyPrice)
	if err != nil {
		return Config{}, fmt.Errorf("tier %q monthly price: %w", td.Tier, err)
	}
	annual, err := parsePrice(td.AnnualPrice)
	if err != nil {
		return Config{}, fmt.Errorf("tier %q annual price: %w", td.Tier, err)
	}

	features := make(map[Feature]bool, len(td.Features))
	for k, v := range td.Features {
		features[Feature(k)] = v
	}

	return Config{
		Tier:           Tier(td.Tier),
		Name:           td.Name,
		MonthlyPrice:   monthly,
		AnnualPrice:    annual,
		MonthlyCredits: td.MonthlyCredits,
		MaxRollover:    td.MaxRollover,
		TrialDays:      td.TrialDays,
		Features:       features,
		Active:         td.Active,
	}, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("price cannot be negative")
	}
	return d, nil
}
