// Package pg provides the PostgreSQL plumbing shared by the billing engine's
// stores: pool setup with connection retry, goose schema migrations routed
// through the application logger, a context-scoped transaction helper so a
// whole lifecycle operation runs as one transaction, and error classifiers
// for the pg error codes the stores care about.
package pg
