package metering

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

// EventType classifies billing events.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription_created"
	EventLimitBlocked        EventType = "limit_blocked"
	EventTrialEnded          EventType = "trial_ended"
)

// BillingEvent is an immutable, append-only audit record of an
// entitlement-relevant event. Writes are best-effort; a failure to record
// one must never fail the action that produced it.
type BillingEvent struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Type      EventType      `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Tx is a consistent read-validate-write view over a single tenant's
// subscription and usage documents. Reads observe a stable snapshot; writes
// are staged and commit atomically when the transaction function returns nil.
type Tx interface {
	// Subscription returns a snapshot of the tenant's subscription, or
	// found=false if none exists yet.
	Subscription() (sub *Subscription, found bool, err error)

	// PutSubscription stages a create-or-replace of the subscription.
	PutSubscription(sub *Subscription) error

	// Usage returns the tenant's counters for one period key. Missing
	// documents and missing metrics read as zero.
	Usage(periodKey string) (map[plan.Metric]int64, error)

	// AddUsage stages an increment of one counter.
	AddUsage(periodKey string, metric plan.Metric, delta int64) error
}

// Store is the transactional document store the engine runs against. The
// subscription document and the per-period usage documents are the only
// mutable shared state; every mutation goes through Transact.
type Store interface {
	// Transact executes fn against a consistent snapshot of the tenant's
	// documents and commits its staged writes atomically, all or nothing.
	// Write-write conflicts are retried transparently (bounded); any error
	// returned by fn aborts the transaction and is returned as-is.
	// Transactions for different tenants never block each other.
	Transact(ctx context.Context, tenantID uuid.UUID, fn func(tx Tx) error) error

	// GetSubscription reads a subscription outside any transaction.
	// Returns ErrSubscriptionNotFound if none exists.
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// GetUsage reads one period's counters outside any transaction.
	// A missing document reads as an empty map.
	GetUsage(ctx context.Context, tenantID uuid.UUID, periodKey string) (map[plan.Metric]int64, error)

	// AppendEvent appends a billing event to the tenant's audit trail.
	AppendEvent(ctx context.Context, event BillingEvent) error
}
