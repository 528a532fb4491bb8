package tier

import "errors"

var (
	ErrTierNotFound         = errors.New("tier not found")
	ErrInvalidCatalog       = errors.New("invalid tier catalog")
	ErrFailedToLoadCatalog  = errors.New("failed to load tier catalog")
	ErrFailedToQueryCatalog = errors.New("failed to query tier catalog")
)
