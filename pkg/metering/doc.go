// Package metering is the transactional core of the usage-metering and
// plan-enforcement engine.
//
// Given a tenant and a batch of (metric, increment) requests, the Engine
// atomically validates the batch against the tenant's effective limits
// (plan base limit plus add-on allowances) and, only if every pair fits,
// commits the increments. Trial expiry, trial milestones and
// cancel-at-period-end transitions are folded into the same transaction, so
// no interleaving of concurrent callers can push a counter past its limit
// or observe a half-applied batch.
//
// The engine runs against any Store implementation: the in-process
// MemoryStore in this package, or the MongoDB/PostgreSQL backends in
// pkg/mongostore and pkg/pgstore. Store transaction conflicts are retried
// transparently by the Store; the only caller-visible failures are the
// business rejections PlanLimitError and FeatureAccessError.
package metering
