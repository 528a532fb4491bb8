// Package proration provides pure calculators for mid-cycle plan changes.
//
// Two calculations must stay consistent for every tier change:
//
//   - Monetary proration: the unused value of the old tier for the remainder
//     of the billing period versus the prorated cost of the new tier, yielding
//     a net charge (positive) or credit owed (negative).
//   - Credit proration: the usage-credit entitlement for the remainder of the
//     period under the new tier, including detection of the case where the
//     user has already consumed more credits than the new entitlement allows.
//
// Both calculators are deterministic functions of their inputs and perform no
// I/O. Monetary amounts use shopspring/decimal to avoid float drift in stored
// currency fields; credits are whole integers rounded half-up.
package proration
