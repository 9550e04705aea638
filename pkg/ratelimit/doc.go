// Package ratelimit provides fixed-window request limiting for the HTTP
// API, keyed per tenant. State lives in Redis so limits hold across
// processes; an in-memory store covers tests and single-node setups.
package ratelimit
