// Package mongostore implements the metering document store on MongoDB.
//
// The layout mirrors the engine's logical collections: subscriptions keyed
// by tenant id, usage documents keyed by tenant id + period key with a flat
// counters map, and an append-only billing_events collection. Enforcement
// transactions are MongoDB multi-document transactions; the server must be
// a replica set member or mongos for these to be available.
package mongostore
