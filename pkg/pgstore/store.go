package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

const (
	txRetryAttempts = 5
	txRetryBackoff  = 10 * time.Millisecond
)

// Store implements metering.Store on PostgreSQL. The enforcement
// transaction runs at SERIALIZABLE isolation; serialization failures are
// retried with bounded backoff so only business errors and hard failures
// reach the caller.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// trialRecord is the JSONB shape of trial state.
type trialRecord struct {
	StartedAt            time.Time  `json:"started_at"`
	EndsAt               time.Time  `json:"ends_at"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	EndedReason          string     `json:"ended_reason,omitempty"`
	PublishedLandingPage bool       `json:"published_landing_page"`
	LeadCaptured         bool       `json:"lead_captured"`
	AIConversationCount  int64      `json:"ai_conversation_count"`
}

type pgTx struct {
	ctx       context.Context
	tx        pgx.Tx
	tenantID  uuid.UUID
	stagedSub *metering.Subscription
	stagedInc map[string]map[plan.Metric]int64
}

func (t *pgTx) Subscription() (*metering.Subscription, bool, error) {
	if t.stagedSub != nil {
		return t.stagedSub.Clone(), true, nil
	}
	sub, err := scanSubscription(t.tx.QueryRow(t.ctx, `
		SELECT tenant_id, plan, status, current_period_start, current_period_end,
		       cancel_at_period_end, add_ons, trial, created_at, updated_at
		FROM subscriptions WHERE tenant_id = $1`, t.tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return sub, true, nil
}

func (t *pgTx) PutSubscription(sub *metering.Subscription) error {
	t.stagedSub = sub.Clone()
	return nil
}

func (t *pgTx) Usage(periodKey string) (map[plan.Metric]int64, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT metric, count FROM usage_counters
		WHERE tenant_id = $1 AND period_key = $2`, t.tenantID, periodKey)
	if err != nil {
		return nil, err
	}
	counters, err := scanCounters(rows)
	if err != nil {
		return nil, err
	}
	for metric, delta := range t.stagedInc[periodKey] {
		counters[metric] += delta
	}
	return counters, nil
}

func (t *pgTx) AddUsage(periodKey string, metric plan.Metric, delta int64) error {
	if t.stagedInc == nil {
		t.stagedInc = make(map[string]map[plan.Metric]int64)
	}
	if t.stagedInc[periodKey] == nil {
		t.stagedInc[periodKey] = make(map[plan.Metric]int64)
	}
	t.stagedInc[periodKey][metric] += delta
	return nil
}

func (t *pgTx) commit() error {
	now := time.Now().UTC()

	if t.stagedSub != nil {
		sub := t.stagedSub
		addOns, err := json.Marshal(addOnsRecord(sub.AddOns))
		if err != nil {
			return err
		}
		var trial []byte
		if sub.Trial != nil {
			trial, err = json.Marshal(trialRecord{
				StartedAt:            sub.Trial.StartedAt,
				EndsAt:               sub.Trial.EndsAt,
				EndedAt:              sub.Trial.EndedAt,
				EndedReason:          string(sub.Trial.EndedReason),
				PublishedLandingPage: sub.Trial.PublishedLandingPage,
				LeadCaptured:         sub.Trial.LeadCaptured,
				AIConversationCount:  sub.Trial.AIConversationCount,
			})
			if err != nil {
				return err
			}
		}
		_, err = t.tx.Exec(t.ctx, `
			INSERT INTO subscriptions (tenant_id, plan, status, current_period_start,
			    current_period_end, cancel_at_period_end, add_ons, trial, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (tenant_id) DO UPDATE SET
			    plan = EXCLUDED.plan,
			    status = EXCLUDED.status,
			    current_period_start = EXCLUDED.current_period_start,
			    current_period_end = EXCLUDED.current_period_end,
			    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			    add_ons = EXCLUDED.add_ons,
			    trial = EXCLUDED.trial,
			    updated_at = EXCLUDED.updated_at`,
			sub.TenantID, string(sub.Plan), string(sub.Status),
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
			addOns, trial, sub.CreatedAt, sub.UpdatedAt)
		if err != nil {
			return err
		}
	}

	for periodKey, deltas := range t.stagedInc {
		for metric, delta := range deltas {
			_, err := t.tx.Exec(t.ctx, `
				INSERT INTO usage_counters (tenant_id, period_key, metric, count, updated_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (tenant_id, period_key, metric) DO UPDATE SET
				    count = usage_counters.count + EXCLUDED.count,
				    updated_at = EXCLUDED.updated_at`,
				t.tenantID, periodKey, string(metric), delta, now)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Transact runs fn at SERIALIZABLE isolation with bounded retry on
// conflicts. Errors returned by fn abort the transaction and are returned
// as-is, never retried.
func (s *Store) Transact(ctx context.Context, tenantID uuid.UUID, fn func(tx metering.Tx) error) error {
	var lastErr error
	for attempt := range txRetryAttempts {
		err := s.runTx(ctx, tenantID, fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * txRetryBackoff):
		}
	}
	return errors.Join(metering.ErrTxConflict, lastErr)
}

func (s *Store) runTx(ctx context.Context, tenantID uuid.UUID, fn func(tx metering.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	view := &pgTx{ctx: ctx, tx: tx, tenantID: tenantID}
	if err := fn(view); err != nil {
		return err
	}
	if err := view.commit(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*metering.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		SELECT tenant_id, plan, status, current_period_start, current_period_end,
		       cancel_at_period_end, add_ons, trial, created_at, updated_at
		FROM subscriptions WHERE tenant_id = $1`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, metering.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *Store) GetUsage(ctx context.Context, tenantID uuid.UUID, periodKey string) (map[plan.Metric]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT metric, count FROM usage_counters
		WHERE tenant_id = $1 AND period_key = $2`, tenantID, periodKey)
	if err != nil {
		return nil, err
	}
	return scanCounters(rows)
}

func (s *Store) AppendEvent(ctx context.Context, event metering.BillingEvent) error {
	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_events (id, tenant_id, event_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.TenantID, string(event.Type), metadata, event.CreatedAt)
	return err
}

func addOnsRecord(addOns map[plan.Metric]int64) map[string]int64 {
	record := make(map[string]int64, len(addOns))
	for metric, n := range addOns {
		record[string(metric)] = n
	}
	return record
}

func scanSubscription(row pgx.Row) (*metering.Subscription, error) {
	var (
		sub        metering.Subscription
		planID     string
		status     string
		addOnsJSON []byte
		trialJSON  []byte
	)
	err := row.Scan(&sub.TenantID, &planID, &status, &sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd, &addOnsJSON, &trialJSON,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Plan = plan.Tier(planID)
	sub.Status = metering.Status(status)

	sub.AddOns = make(map[plan.Metric]int64)
	if len(addOnsJSON) > 0 {
		var record map[string]int64
		if err := json.Unmarshal(addOnsJSON, &record); err != nil {
			return nil, errors.Join(ErrMalformedRecord, fmt.Errorf("add_ons for tenant %s: %w", sub.TenantID, err))
		}
		for metric, n := range record {
			sub.AddOns[plan.Metric(metric)] = n
		}
	}
	if len(trialJSON) > 0 {
		var record trialRecord
		if err := json.Unmarshal(trialJSON, &record); err != nil {
			return nil, errors.Join(ErrMalformedRecord, fmt.Errorf("trial for tenant %s: %w", sub.TenantID, err))
		}
		sub.Trial = &metering.TrialState{
			StartedAt:            record.StartedAt,
			EndsAt:               record.EndsAt,
			EndedAt:              record.EndedAt,
			EndedReason:          metering.TrialEndReason(record.EndedReason),
			PublishedLandingPage: record.PublishedLandingPage,
			LeadCaptured:         record.LeadCaptured,
			AIConversationCount:  record.AIConversationCount,
		}
	}
	return &sub, nil
}

func scanCounters(rows pgx.Rows) (map[plan.Metric]int64, error) {
	defer rows.Close()
	counters := make(map[plan.Metric]int64)
	for rows.Next() {
		var (
			metric string
			count  int64
		)
		if err := rows.Scan(&metric, &count); err != nil {
			return nil, err
		}
		counters[plan.Metric(metric)] = count
	}
	return counters, rows.Err()
}
