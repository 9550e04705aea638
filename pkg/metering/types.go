package metering

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

// Status represents the lifecycle state of a tenant subscription.
type Status string

const (
	StatusTrial    Status = "trial"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Usable reports whether metered actions are permitted in this status.
func (s Status) Usable() bool {
	return s == StatusTrial || s == StatusActive
}

// TrialEndReason explains why a trial was closed. Once recorded it is never
// cleared or changed.
type TrialEndReason string

const (
	TrialEndTimeElapsed     TrialEndReason = "time_elapsed"
	TrialEndMilestone       TrialEndReason = "milestone_reached"
	TrialEndConversationCap TrialEndReason = "conversation_cap_reached"
)

// TrialState tracks a tenant's trial window and the telemetry that decides
// whether the trial has proven out.
type TrialState struct {
	StartedAt            time.Time
	EndsAt               time.Time
	EndedAt              *time.Time
	EndedReason          TrialEndReason
	PublishedLandingPage bool
	LeadCaptured         bool
	AIConversationCount  int64
}

// Ended reports whether the trial has been closed.
func (t *TrialState) Ended() bool {
	return t != nil && t.EndedAt != nil
}

func (t *TrialState) clone() *TrialState {
	if t == nil {
		return nil
	}
	cp := *t
	if t.EndedAt != nil {
		endedAt := *t.EndedAt
		cp.EndedAt = &endedAt
	}
	return &cp
}

// Subscription is the single source of truth for a tenant's entitlements.
// Exactly one record exists per tenant; it is created lazily on first
// reference, in trial state.
type Subscription struct {
	TenantID           uuid.UUID
	Plan               plan.Tier
	Status             Status
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	AddOns             map[plan.Metric]int64
	Trial              *TrialState
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a deep copy, keeping store snapshots isolated from caller
// mutations.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	cp := *s
	if s.CurrentPeriodStart != nil {
		v := *s.CurrentPeriodStart
		cp.CurrentPeriodStart = &v
	}
	if s.CurrentPeriodEnd != nil {
		v := *s.CurrentPeriodEnd
		cp.CurrentPeriodEnd = &v
	}
	if s.AddOns != nil {
		cp.AddOns = make(map[plan.Metric]int64, len(s.AddOns))
		for m, n := range s.AddOns {
			cp.AddOns[m] = n
		}
	}
	cp.Trial = s.Trial.clone()
	return &cp
}

// Normalize fills structurally missing fields with safe defaults so that
// loosely-shaped stored records never widen a tenant's entitlements.
// It mutates and returns the receiver.
func (s *Subscription) Normalize(catalog *plan.Catalog) *Subscription {
	s.Plan = catalog.Resolve(string(s.Plan))
	if s.AddOns == nil {
		s.AddOns = make(map[plan.Metric]int64)
	}
	for m, n := range s.AddOns {
		// A non-positive allowance can only come from a malformed record.
		if n <= 0 {
			delete(s.AddOns, m)
		}
	}
	switch s.Status {
	case StatusTrial, StatusActive, StatusPastDue, StatusCanceled:
	default:
		// Unknown status fails closed unless an open trial proves otherwise.
		if s.Trial != nil && !s.Trial.Ended() {
			s.Status = StatusTrial
		} else {
			s.Status = StatusPastDue
		}
	}
	if s.Status == StatusTrial && s.Trial == nil {
		// Structurally broken record: a trial status requires trial state.
		s.Status = StatusPastDue
	}
	return s
}

// EffectiveStatus derives the status the subscription would hold at the given
// instant, applying trial expiry and cancel-at-period-end without persisting
// anything. Read paths use this to avoid write side effects.
func (s *Subscription) EffectiveStatus(now time.Time) Status {
	switch s.Status {
	case StatusTrial:
		if s.Trial == nil || s.Trial.Ended() || !now.Before(s.Trial.EndsAt) {
			return StatusPastDue
		}
	case StatusActive:
		if s.CancelAtPeriodEnd && s.CurrentPeriodEnd != nil && !now.Before(*s.CurrentPeriodEnd) {
			return StatusCanceled
		}
	}
	return s.Status
}

// EffectiveLimit resolves the limit that actually applies to a metric for
// this subscription: the plan's base limit plus any add-on allowance. An
// unlimited base stays unlimited regardless of add-ons.
func (s *Subscription) EffectiveLimit(p plan.Plan, m plan.Metric) int64 {
	base := p.LimitFor(m)
	if base == plan.Unlimited {
		return plan.Unlimited
	}
	return saturatingAdd(base, s.AddOns[m])
}

// saturatingAdd clamps the sum of two non-negative counters at MaxInt64
// instead of wrapping.
func saturatingAdd(a, b int64) int64 {
	if sum := a + b; sum >= a {
		return sum
	}
	return math.MaxInt64
}

// Increment is one (metric, delta) pair of a metered action.
type Increment struct {
	Metric plan.Metric `json:"metric"`
	Delta  int64       `json:"delta"`
}
