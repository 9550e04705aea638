package metering

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

const (
	// DefaultTrialDays is the fixed trial window length.
	DefaultTrialDays = 7
	// DefaultTrialConversationCap ends the trial once this many AI
	// conversations have been consumed.
	DefaultTrialConversationCap int64 = 25
	// MaxIncrementDelta bounds a single usage increment or add-on grant.
	// Deltas arrive unvalidated from request bodies; the bound keeps
	// counter arithmetic far from int64 overflow.
	MaxIncrementDelta int64 = math.MaxInt32
)

// Engine is the transactional core: it decides atomically whether a batch of
// metered actions fits under a tenant's entitlements and, only if all pass,
// records the consumption. Subscription lifecycle transitions ride along in
// the same transaction.
type Engine struct {
	catalog         *plan.Catalog
	store           Store
	log             *slog.Logger
	now             func() time.Time
	trialDays       int
	conversationCap int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the structured logger used for non-fatal failures.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithTrialDays overrides the trial window length.
func WithTrialDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.trialDays = days
		}
	}
}

// WithConversationCap overrides the trial AI-conversation cap.
func WithConversationCap(cap int64) Option {
	return func(e *Engine) {
		if cap > 0 {
			e.conversationCap = cap
		}
	}
}

// NewEngine creates an Engine. Panics if catalog or store is nil to fail
// fast on misconfiguration.
func NewEngine(catalog *plan.Catalog, store Store, opts ...Option) *Engine {
	if catalog == nil {
		panic("metering: plan catalog is required")
	}
	if store == nil {
		panic("metering: store is required")
	}
	e := &Engine{
		catalog:         catalog,
		store:           store,
		log:             slog.Default(),
		now:             func() time.Time { return time.Now().UTC() },
		trialDays:       DefaultTrialDays,
		conversationCap: DefaultTrialConversationCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// transact runs fn through the store and classifies infrastructure failures
// under ErrStoreFailure, keeping them distinguishable from business
// rejections that fn returned itself.
func (e *Engine) transact(ctx context.Context, tenantID uuid.UUID, fn func(Tx) error) error {
	err := e.store.Transact(ctx, tenantID, fn)
	if err == nil || errors.Is(err, ErrSubscriptionNotFound) {
		return err
	}
	return errors.Join(ErrStoreFailure, err)
}

// newTrialSubscription mints the default subscription a tenant starts with.
func (e *Engine) newTrialSubscription(tenantID uuid.UUID, now time.Time) *Subscription {
	return &Subscription{
		TenantID:  tenantID,
		Plan:      plan.TierFree,
		Status:    StatusTrial,
		AddOns:    make(map[plan.Metric]int64),
		Trial:     e.newTrialState(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EnsureSubscription returns the tenant's subscription, creating a default
// trial subscription if none exists. Safe under concurrent first calls: at
// most one record is ever created and all callers converge on the same
// trial window.
func (e *Engine) EnsureSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	var (
		result  *Subscription
		created bool
	)
	err := e.transact(ctx, tenantID, func(tx Tx) error {
		result, created = nil, false // reset: fn may run more than once

		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if found {
			result = sub.Normalize(e.catalog)
			return nil
		}
		sub = e.newTrialSubscription(tenantID, e.now())
		if err := tx.PutSubscription(sub); err != nil {
			return err
		}
		result, created = sub, true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		e.logEvent(ctx, tenantID, EventSubscriptionCreated, map[string]any{
			"plan":   string(result.Plan),
			"status": string(result.Status),
		})
	}
	return result, nil
}

// GetSubscription is a read-only fetch with normalization. It never persists
// lifecycle transitions; only EnforceUsage and CheckUsageLimit do, keeping
// read paths free of write side effects.
func (e *Engine) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return sub.Normalize(e.catalog), nil
}

// EnforceUsage atomically validates a batch of (metric, increment) requests
// against the tenant's effective limits and, only if every pair fits,
// commits the increments together with any resulting subscription-state
// transition. On rejection nothing is incremented, but a lifecycle
// transition that fired during the check is still persisted.
func (e *Engine) EnforceUsage(ctx context.Context, tenantID uuid.UUID, increments ...Increment) error {
	if len(increments) == 0 {
		return nil
	}
	for _, inc := range increments {
		if inc.Delta <= 0 || inc.Delta > MaxIncrementDelta {
			return ErrInvalidIncrement
		}
	}

	var (
		reject     *PlanLimitError
		created    bool
		trialEnded TrialEndReason
	)
	err := e.transact(ctx, tenantID, func(tx Tx) error {
		reject, created, trialEnded = nil, false, "" // reset: fn may run more than once
		now := e.now()

		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if !found {
			sub = e.newTrialSubscription(tenantID, now)
			created = true
		} else {
			sub.Normalize(e.catalog)
		}

		dirty := created
		if applyLifecycle(sub, now) {
			dirty = true
		}

		if !sub.Status.Usable() {
			reject = e.blockedError(sub, increments[0].Metric, 0, 0)
			return e.flush(tx, sub, dirty, now)
		}

		p := e.catalog.Plan(sub.Plan)

		// Validate the whole batch against snapshot reads before staging
		// anything: rejection must leave every counter untouched.
		usageByKey := make(map[string]map[plan.Metric]int64)
		for _, inc := range increments {
			key := plan.PeriodKey(inc.Metric, now)
			counters, ok := usageByKey[key]
			if !ok {
				counters, err = tx.Usage(key)
				if err != nil {
					return err
				}
				usageByKey[key] = counters
			}

			limit := sub.EffectiveLimit(p, inc.Metric)
			current := counters[inc.Metric]
			// Compare by subtraction: current+delta can wrap int64.
			if limit != plan.Unlimited && inc.Delta > limit-current {
				reject = e.blockedError(sub, inc.Metric, limit, current)
				return e.flush(tx, sub, dirty, now)
			}
			// Accumulate so repeated metrics in one batch are checked
			// against their combined total.
			counters[inc.Metric] = saturatingAdd(current, inc.Delta)
		}

		for _, inc := range increments {
			if err := tx.AddUsage(plan.PeriodKey(inc.Metric, now), inc.Metric, inc.Delta); err != nil {
				return err
			}
		}

		if sub.Status == StatusTrial {
			for _, inc := range increments {
				switch inc.Metric {
				case plan.MetricLeads:
					sub.Trial.LeadCaptured = true
					dirty = true
				case plan.MetricAIConversations:
					sub.Trial.AIConversationCount += inc.Delta
					dirty = true
				}
			}
			trialEnded = e.evaluateMilestone(sub, now)
			if trialEnded != "" {
				dirty = true
			}
		}

		return e.flush(tx, sub, dirty, now)
	})
	if err != nil {
		return err
	}

	if created {
		e.logEvent(ctx, tenantID, EventSubscriptionCreated, map[string]any{"plan": string(plan.TierFree)})
	}
	if reject != nil {
		e.logEvent(ctx, tenantID, EventLimitBlocked, map[string]any{
			"metric":        string(reject.Metric),
			"limit":         reject.Limit,
			"current_usage": reject.CurrentUsage,
			"plan":          string(reject.Plan),
			"status":        string(reject.Status),
		})
		return reject
	}
	if trialEnded != "" {
		e.logEvent(ctx, tenantID, EventTrialEnded, map[string]any{"reason": string(trialEnded)})
	}
	return nil
}

// EnforceUsageLimit is the single-metric convenience form of EnforceUsage.
func (e *Engine) EnforceUsageLimit(ctx context.Context, tenantID uuid.UUID, metric plan.Metric, delta int64) error {
	return e.EnforceUsage(ctx, tenantID, Increment{Metric: metric, Delta: delta})
}

// CheckUsageLimit is the read-mostly pre-flight variant used by UI checks:
// it applies (and persists) the same lifecycle transitions but only inspects
// one metric's counter without incrementing it. Returns a PlanLimitError if
// the tenant is already at or over the limit.
func (e *Engine) CheckUsageLimit(ctx context.Context, tenantID uuid.UUID, metric plan.Metric) error {
	var (
		reject  *PlanLimitError
		created bool
	)
	err := e.transact(ctx, tenantID, func(tx Tx) error {
		reject, created = nil, false // reset: fn may run more than once
		now := e.now()

		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if !found {
			sub = e.newTrialSubscription(tenantID, now)
			created = true
		} else {
			sub.Normalize(e.catalog)
		}

		dirty := created
		if applyLifecycle(sub, now) {
			dirty = true
		}

		if !sub.Status.Usable() {
			reject = e.blockedError(sub, metric, 0, 0)
			return e.flush(tx, sub, dirty, now)
		}

		limit := sub.EffectiveLimit(e.catalog.Plan(sub.Plan), metric)
		if limit != plan.Unlimited {
			counters, err := tx.Usage(plan.PeriodKey(metric, now))
			if err != nil {
				return err
			}
			if current := counters[metric]; current >= limit {
				reject = e.blockedError(sub, metric, limit, current)
			}
		}
		return e.flush(tx, sub, dirty, now)
	})
	if err != nil {
		return err
	}
	if created {
		e.logEvent(ctx, tenantID, EventSubscriptionCreated, map[string]any{"plan": string(plan.TierFree)})
	}
	if reject != nil {
		e.logEvent(ctx, tenantID, EventLimitBlocked, map[string]any{
			"metric":        string(reject.Metric),
			"limit":         reject.Limit,
			"current_usage": reject.CurrentUsage,
		})
		return reject
	}
	return nil
}

// RequirePlanFeature ensures the subscription is usable and the plan grants
// the named feature. Pure entitlement check, independent of usage counters;
// it performs no state transitions.
func (e *Engine) RequirePlanFeature(ctx context.Context, tenantID uuid.UUID, feature plan.Feature) error {
	sub, err := e.EnsureSubscription(ctx, tenantID)
	if err != nil {
		return err
	}
	if !sub.EffectiveStatus(e.now()).Usable() || !e.catalog.HasFeature(sub.Plan, feature) {
		upgrade, _ := e.catalog.UpgradeFor(sub.Plan)
		return &FeatureAccessError{
			Feature:          feature,
			Plan:             sub.Plan,
			SuggestedUpgrade: upgrade,
		}
	}
	return nil
}

// RecordLandingPagePublished persists the "landing page published" trial
// signal and evaluates the milestone in the same transaction. A no-op for
// tenants that are not in an open trial.
func (e *Engine) RecordLandingPagePublished(ctx context.Context, tenantID uuid.UUID) error {
	var trialEnded TrialEndReason
	err := e.transact(ctx, tenantID, func(tx Tx) error {
		trialEnded = "" // reset: fn may run more than once
		now := e.now()

		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		sub.Normalize(e.catalog)

		dirty := applyLifecycle(sub, now)
		if sub.Status == StatusTrial && !sub.Trial.PublishedLandingPage {
			sub.Trial.PublishedLandingPage = true
			dirty = true
			trialEnded = e.evaluateMilestone(sub, now)
		}
		return e.flush(tx, sub, dirty, now)
	})
	if err != nil {
		return err
	}
	if trialEnded != "" {
		e.logEvent(ctx, tenantID, EventTrialEnded, map[string]any{"reason": string(trialEnded)})
	}
	return nil
}

// ActivateSubscription is the write hook for the external billing
// collaborator: it moves a tenant onto a paid plan with the given billing
// period. The trial, if still open, is left untouched historically but the
// status leaves the trial state machine.
func (e *Engine) ActivateSubscription(ctx context.Context, tenantID uuid.UUID, tier plan.Tier, periodStart, periodEnd time.Time) error {
	return e.transact(ctx, tenantID, func(tx Tx) error {
		now := e.now()
		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if !found {
			sub = e.newTrialSubscription(tenantID, now)
		} else {
			sub.Normalize(e.catalog)
		}

		if sub.Status == StatusTrial && sub.Trial != nil && !sub.Trial.Ended() {
			endedAt := now
			sub.Trial.EndedAt = &endedAt
			sub.Trial.EndedReason = TrialEndMilestone
		}
		sub.Plan = e.catalog.Resolve(string(tier))
		sub.Status = StatusActive
		sub.CurrentPeriodStart = &periodStart
		sub.CurrentPeriodEnd = &periodEnd
		sub.CancelAtPeriodEnd = false
		return e.flush(tx, sub, true, now)
	})
}

// SetCancelAtPeriodEnd flags or unflags cancellation at the end of the
// current billing period.
func (e *Engine) SetCancelAtPeriodEnd(ctx context.Context, tenantID uuid.UUID, cancel bool) error {
	return e.transact(ctx, tenantID, func(tx Tx) error {
		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if !found {
			return ErrSubscriptionNotFound
		}
		sub.Normalize(e.catalog)
		sub.CancelAtPeriodEnd = cancel
		return e.flush(tx, sub, true, e.now())
	})
}

// GrantAddOn adds extra allowance for an add-on-eligible metric.
func (e *Engine) GrantAddOn(ctx context.Context, tenantID uuid.UUID, metric plan.Metric, quantity int64) error {
	if quantity <= 0 || quantity > MaxIncrementDelta || !plan.AddOnEligible(metric) {
		return ErrInvalidIncrement
	}
	return e.transact(ctx, tenantID, func(tx Tx) error {
		sub, found, err := tx.Subscription()
		if err != nil {
			return err
		}
		if !found {
			return ErrSubscriptionNotFound
		}
		sub.Normalize(e.catalog)
		sub.AddOns[metric] = saturatingAdd(sub.AddOns[metric], quantity)
		return e.flush(tx, sub, true, e.now())
	})
}

// flush stages the subscription write when anything changed.
func (e *Engine) flush(tx Tx, sub *Subscription, dirty bool, now time.Time) error {
	if !dirty {
		return nil
	}
	sub.UpdatedAt = now
	return tx.PutSubscription(sub)
}

// blockedError builds the caller-visible rejection for a metric.
func (e *Engine) blockedError(sub *Subscription, metric plan.Metric, limit, current int64) *PlanLimitError {
	upgrade, _ := e.catalog.UpgradeFor(sub.Plan)
	return &PlanLimitError{
		Metric:           metric,
		Limit:            limit,
		CurrentUsage:     current,
		Plan:             sub.Plan,
		Status:           sub.Status,
		SuggestedUpgrade: upgrade,
	}
}

// logEvent appends a billing event, best-effort. Audit-trail failures are
// logged and swallowed; they must never fail a user-facing action.
func (e *Engine) logEvent(ctx context.Context, tenantID uuid.UUID, typ EventType, metadata map[string]any) {
	event := BillingEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Type:      typ,
		Metadata:  metadata,
		CreatedAt: e.now(),
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		e.log.WarnContext(ctx, "failed to append billing event",
			slog.String("tenant_id", tenantID.String()),
			slog.String("event_type", string(typ)),
			slog.Any("error", err),
		)
	}
}
