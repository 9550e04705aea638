package metering

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

// MemoryStore is an in-process Store for single-node deployments and tests.
// Per-tenant locking serializes transactions on the same tenant while
// keeping different tenants fully independent, so transactions never
// conflict and never need retrying.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantDocs
}

type tenantDocs struct {
	mu     sync.Mutex
	sub    *Subscription
	usage  map[string]map[plan.Metric]int64
	events []BillingEvent
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[uuid.UUID]*tenantDocs)}
}

func (s *MemoryStore) tenant(tenantID uuid.UUID) *tenantDocs {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.tenants[tenantID]
	if !ok {
		docs = &tenantDocs{usage: make(map[string]map[plan.Metric]int64)}
		s.tenants[tenantID] = docs
	}
	return docs
}

// memTx stages writes against a tenant's documents; the tenant lock held by
// Transact makes the reads a consistent snapshot.
type memTx struct {
	docs      *tenantDocs
	stagedSub *Subscription
	stagedInc map[string]map[plan.Metric]int64
}

func (tx *memTx) Subscription() (*Subscription, bool, error) {
	if tx.stagedSub != nil {
		return tx.stagedSub.Clone(), true, nil
	}
	if tx.docs.sub == nil {
		return nil, false, nil
	}
	return tx.docs.sub.Clone(), true, nil
}

func (tx *memTx) PutSubscription(sub *Subscription) error {
	tx.stagedSub = sub.Clone()
	return nil
}

func (tx *memTx) Usage(periodKey string) (map[plan.Metric]int64, error) {
	counters := make(map[plan.Metric]int64)
	for metric, n := range tx.docs.usage[periodKey] {
		counters[metric] = n
	}
	for metric, delta := range tx.stagedInc[periodKey] {
		counters[metric] += delta
	}
	return counters, nil
}

func (tx *memTx) AddUsage(periodKey string, metric plan.Metric, delta int64) error {
	if tx.stagedInc == nil {
		tx.stagedInc = make(map[string]map[plan.Metric]int64)
	}
	if tx.stagedInc[periodKey] == nil {
		tx.stagedInc[periodKey] = make(map[plan.Metric]int64)
	}
	tx.stagedInc[periodKey][metric] += delta
	return nil
}

// Transact runs fn under the tenant's lock and applies staged writes only
// when fn returns nil.
func (s *MemoryStore) Transact(ctx context.Context, tenantID uuid.UUID, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	docs := s.tenant(tenantID)
	docs.mu.Lock()
	defer docs.mu.Unlock()

	tx := &memTx{docs: docs}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.stagedSub != nil {
		docs.sub = tx.stagedSub
	}
	for periodKey, deltas := range tx.stagedInc {
		counters := docs.usage[periodKey]
		if counters == nil {
			counters = make(map[plan.Metric]int64)
			docs.usage[periodKey] = counters
		}
		for metric, delta := range deltas {
			counters[metric] += delta
		}
	}
	return nil
}

func (s *MemoryStore) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	docs := s.tenant(tenantID)
	docs.mu.Lock()
	defer docs.mu.Unlock()
	if docs.sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return docs.sub.Clone(), nil
}

func (s *MemoryStore) GetUsage(ctx context.Context, tenantID uuid.UUID, periodKey string) (map[plan.Metric]int64, error) {
	docs := s.tenant(tenantID)
	docs.mu.Lock()
	defer docs.mu.Unlock()
	counters := make(map[plan.Metric]int64, len(docs.usage[periodKey]))
	for metric, n := range docs.usage[periodKey] {
		counters[metric] = n
	}
	return counters, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event BillingEvent) error {
	docs := s.tenant(event.TenantID)
	docs.mu.Lock()
	defer docs.mu.Unlock()
	docs.events = append(docs.events, event)
	return nil
}

// Events returns a copy of a tenant's billing event trail, oldest first.
// Intended for tests and diagnostics.
func (s *MemoryStore) Events(tenantID uuid.UUID) []BillingEvent {
	docs := s.tenant(tenantID)
	docs.mu.Lock()
	defer docs.mu.Unlock()
	return append([]BillingEvent(nil), docs.events...)
}
