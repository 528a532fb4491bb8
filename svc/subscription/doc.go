// Package subscription implements the subscription lifecycle engine: the
// state machine over tier transitions (create, upgrade, downgrade, cancel,
// reactivate) and the orchestration of the dual proration calculators.
//
// A tier change mutates the subscription, records a pending monetary
// proration event for the billing collaborator, and appends the prorated
// credit entitlement to the ledger. The two side effects fail differently on
// purpose: a missing monetary record can be reconciled later and is logged
// and swallowed, while a failed credit allocation is the operation's failure
// even though the tier field has already changed. Callers retry the credit
// step; the error and the log line carry the full computation inputs.
//
// Persistence is consumed through the Store, EventStore, credit.Ledger and
// tier.Store interfaces; Postgres implementations live alongside in-memory
// ones used by tests. A Transactor scopes each operation to one database
// transaction, and subscription mutations carry an optimistic version check
// so concurrent tier changes cannot both act on stale price state.
package subscription
