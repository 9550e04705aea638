package mongostore

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

// subscriptionDoc is the stored shape of a subscription. Decoding goes
// through fromSubscriptionDoc which fills missing fields with safe defaults
// instead of trusting the stored shape.
type subscriptionDoc struct {
	TenantID           string           `bson:"_id"`
	Plan               string           `bson:"plan"`
	Status             string           `bson:"status"`
	CurrentPeriodStart *time.Time       `bson:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time       `bson:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool             `bson:"cancel_at_period_end"`
	AddOns             map[string]int64 `bson:"add_ons,omitempty"`
	Trial              *trialDoc        `bson:"trial,omitempty"`
	CreatedAt          time.Time        `bson:"created_at"`
	UpdatedAt          time.Time        `bson:"updated_at"`
}

type trialDoc struct {
	StartedAt            time.Time  `bson:"started_at"`
	EndsAt               time.Time  `bson:"ends_at"`
	EndedAt              *time.Time `bson:"ended_at,omitempty"`
	EndedReason          string     `bson:"ended_reason,omitempty"`
	PublishedLandingPage bool       `bson:"published_landing_page"`
	LeadCaptured         bool       `bson:"lead_captured"`
	AIConversationCount  int64      `bson:"ai_conversation_count"`
}

type usageDoc struct {
	ID        string           `bson:"_id"` // "<tenantID>:<periodKey>"
	TenantID  string           `bson:"tenant_id"`
	Period    string           `bson:"period"`
	Counters  map[string]int64 `bson:"counters"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

type eventDoc struct {
	ID        string         `bson:"_id"`
	TenantID  string         `bson:"tenant_id"`
	Type      string         `bson:"type"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
}

func usageDocID(tenantID uuid.UUID, periodKey string) string {
	return tenantID.String() + ":" + periodKey
}

func toSubscriptionDoc(sub *metering.Subscription) subscriptionDoc {
	doc := subscriptionDoc{
		TenantID:           sub.TenantID.String(),
		Plan:               string(sub.Plan),
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
	if len(sub.AddOns) > 0 {
		doc.AddOns = make(map[string]int64, len(sub.AddOns))
		for metric, n := range sub.AddOns {
			doc.AddOns[string(metric)] = n
		}
	}
	if sub.Trial != nil {
		doc.Trial = &trialDoc{
			StartedAt:            sub.Trial.StartedAt,
			EndsAt:               sub.Trial.EndsAt,
			EndedAt:              sub.Trial.EndedAt,
			EndedReason:          string(sub.Trial.EndedReason),
			PublishedLandingPage: sub.Trial.PublishedLandingPage,
			LeadCaptured:         sub.Trial.LeadCaptured,
			AIConversationCount:  sub.Trial.AIConversationCount,
		}
	}
	return doc
}

func fromSubscriptionDoc(doc subscriptionDoc) (*metering.Subscription, error) {
	tenantID, err := uuid.Parse(doc.TenantID)
	if err != nil {
		return nil, errors.Join(ErrMalformedDocument, fmt.Errorf("subscription _id %q: %w", doc.TenantID, err))
	}
	sub := &metering.Subscription{
		TenantID:           tenantID,
		Plan:               plan.Tier(doc.Plan),
		Status:             metering.Status(doc.Status),
		CurrentPeriodStart: doc.CurrentPeriodStart,
		CurrentPeriodEnd:   doc.CurrentPeriodEnd,
		CancelAtPeriodEnd:  doc.CancelAtPeriodEnd,
		AddOns:             make(map[plan.Metric]int64, len(doc.AddOns)),
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
	for metric, n := range doc.AddOns {
		sub.AddOns[plan.Metric(metric)] = n
	}
	if doc.Trial != nil {
		sub.Trial = &metering.TrialState{
			StartedAt:            doc.Trial.StartedAt,
			EndsAt:               doc.Trial.EndsAt,
			EndedAt:              doc.Trial.EndedAt,
			EndedReason:          metering.TrialEndReason(doc.Trial.EndedReason),
			PublishedLandingPage: doc.Trial.PublishedLandingPage,
			LeadCaptured:         doc.Trial.LeadCaptured,
			AIConversationCount:  doc.Trial.AIConversationCount,
		}
	}
	return sub, nil
}

func countersFromDoc(doc usageDoc) map[plan.Metric]int64 {
	counters := make(map[plan.Metric]int64, len(doc.Counters))
	for metric, n := range doc.Counters {
		counters[plan.Metric(metric)] = n
	}
	return counters
}
