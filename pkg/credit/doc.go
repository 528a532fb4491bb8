// Package credit implements the usage-credit ledger: an append-only record
// of credit allocations per user, each scoped to an allocation period and
// tagged with its source (subscription grant, bonus, admin grant, referral,
// coupon).
//
// Allocations are never mutated or deleted. The available balance for a
// period is derived: credits allocated in the period minus credits consumed,
// where consumption is read from a separate usage ledger (a collaborator
// outside this module, abstracted by UsageSource). The engine's own actions
// never drive that balance negative; the overuse policy in pkg/proration
// allocates exactly the consumed amount when a downgrade would otherwise
// leave a deficit.
package credit
