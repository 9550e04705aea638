// Package pgstore implements the metering document store on PostgreSQL.
//
// Subscriptions, per-period usage counters and billing events map onto three
// tables (see migrations/). Enforcement transactions run at SERIALIZABLE
// isolation; write-write conflicts surface as SQLSTATE 40001/40P01 and are
// retried with bounded backoff inside Transact, invisible to callers.
package pgstore
