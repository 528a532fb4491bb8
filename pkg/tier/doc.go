// Package tier defines the product tier catalog: the ordered set of tier
// names, per-tier pricing and credit allocations, trial lengths, and feature
// maps, plus the stores that serve them.
//
// The catalog is read-mostly. Tier rows are produced by an admin surface and
// only read by the subscription engine; inactive rows are retained so that
// subscriptions created under an old price keep their snapshot (existing
// subscriptions are never repriced by catalog changes).
//
// Level defines a strict total order over known tiers used to classify a
// requested change as an upgrade or a downgrade before picking the proration
// formula. CachedStore adds an explicit TTL cache with an injected clock and
// Invalidate/Refresh hooks for the admin write path.
package tier
