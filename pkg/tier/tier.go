package tier

// Tier identifies a product tier in the catalog.
type Tier string

const (
	Free          Tier = "free"
	Pro           Tier = "pro"
	ProMax        Tier = "pro_max"
	EnterprisePro Tier = "enterprise_pro"
	EnterpriseMax Tier = "enterprise_max"
	Perpetual     Tier = "perpetual"
)

// levels is the total order over known tiers. Unknown names map to 0 so they
// sort below every known tier; callers validate tier existence against the
// catalog before classifying, so a typo'd name surfaces as a not-found error
// rather than a bogus downgrade.
var levels = map[Tier]int{
	Free:          1,
	Pro:           2,
	ProMax:        3,
	EnterprisePro: 4,
	EnterpriseMax: 5,
	Perpetual:     6,
}

// Level returns the tier's position in the total order, 0 for unknown names.
func Level(t Tier) int {
	return levels[t]
}

// Direction classifies a requested tier change.
type Direction string

const (
	DirectionUpgrade   Direction = "upgrade"
	DirectionDowngrade Direction = "downgrade"
	DirectionInvalid   Direction = "invalid"
)

// Classify compares two tiers by level. Equal levels are invalid: upgrade and
// downgrade use different proration formulas, so a same-level request must be
// rejected with an error instead of silently no-opping.
func Classify(current, target Tier) Direction {
	switch cur, tgt := Level(current), Level(target); {
	case tgt > cur:
		return DirectionUpgrade
	case tgt < cur:
		return DirectionDowngrade
	default:
		return DirectionInvalid
	}
}
