// Package plan holds the static, versioned catalog of subscription tiers:
// per-metric limits, feature flags, prices and upgrade pointers.
//
// The catalog is pure data. It is loaded once at process start (from the
// built-in Default or from a YAML file) into an immutable Catalog value and
// is safe for unsynchronized concurrent reads.
//
// Unrecognized plan identifiers always resolve to the lowest tier. Granting
// unlimited access on bad input is never an acceptable failure mode for a
// metering engine, so every lookup fails closed.
package plan
