package metering

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

// WarningLevel grades how close a metric is to its limit.
type WarningLevel string

const (
	WarningNone  WarningLevel = ""
	Warning70    WarningLevel = "warning_70"
	Warning90    WarningLevel = "warning_90"
	WarningLimit WarningLevel = "limit"
)

// WarningFor computes the warning tier for a usage/limit pair. Unlimited
// never warns; a zero limit is always at the limit.
func WarningFor(used, limit int64) WarningLevel {
	if limit == plan.Unlimited {
		return WarningNone
	}
	if limit == 0 {
		return WarningLimit
	}
	ratio := float64(used) / float64(limit)
	switch {
	case ratio >= 1.0:
		return WarningLimit
	case ratio >= 0.9:
		return Warning90
	case ratio >= 0.7:
		return Warning70
	default:
		return WarningNone
	}
}

// MetricUsage is one metric's usage, effective limit and warning tier.
type MetricUsage struct {
	Used    int64
	Limit   int64 // plan.Unlimited renders as null
	Warning WarningLevel
}

// MarshalJSON renders unlimited limits as null for UI consumers.
func (u MetricUsage) MarshalJSON() ([]byte, error) {
	payload := struct {
		Used    int64        `json:"used"`
		Limit   *int64       `json:"limit"`
		Warning WarningLevel `json:"warning,omitempty"`
	}{
		Used:    u.Used,
		Warning: u.Warning,
	}
	if u.Limit != plan.Unlimited {
		limit := u.Limit
		payload.Limit = &limit
	}
	return json.Marshal(payload)
}

// BillingSummary combines a tenant's subscription with per-metric usage,
// headroom and warning tiers for display by external UI.
type BillingSummary struct {
	Subscription *Subscription               `json:"subscription"`
	Usage        map[plan.Metric]MetricUsage `json:"usage"`
}

// GetUsageSnapshot returns current counters for all metrics, each resolved
// against its own period key. Read-only; performs no state transitions.
func (e *Engine) GetUsageSnapshot(ctx context.Context, tenantID uuid.UUID) (map[plan.Metric]int64, error) {
	now := e.now()

	// Metrics share at most two period keys: "total" and the current month.
	byKey := make(map[string]map[plan.Metric]int64)
	snapshot := make(map[plan.Metric]int64, len(plan.Metrics()))
	for _, metric := range plan.Metrics() {
		key := plan.PeriodKey(metric, now)
		counters, ok := byKey[key]
		if !ok {
			var err error
			counters, err = e.store.GetUsage(ctx, tenantID, key)
			if err != nil {
				return nil, errors.Join(ErrStoreFailure, err)
			}
			byKey[key] = counters
		}
		snapshot[metric] = counters[metric]
	}
	return snapshot, nil
}

// GetBillingSummary combines the subscription and the usage snapshot with a
// warning tier per metric. Read-only; a missing subscription is reported as
// the default trial view would be after bootstrap, without creating one.
func (e *Engine) GetBillingSummary(ctx context.Context, tenantID uuid.UUID) (*BillingSummary, error) {
	sub, err := e.GetSubscription(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
		sub = e.newTrialSubscription(tenantID, e.now())
	}

	snapshot, err := e.GetUsageSnapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p := e.catalog.Plan(sub.Plan)
	usage := make(map[plan.Metric]MetricUsage, len(snapshot))
	for metric, used := range snapshot {
		limit := sub.EffectiveLimit(p, metric)
		usage[metric] = MetricUsage{
			Used:    used,
			Limit:   limit,
			Warning: WarningFor(used, limit),
		}
	}

	return &BillingSummary{Subscription: sub, Usage: usage}, nil
}
