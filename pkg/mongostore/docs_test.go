package mongostore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

func TestSubscriptionDocRoundTrip(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	periodStart := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)
	endedAt := periodStart.AddDate(0, 0, 3)

	sub := &metering.Subscription{
		TenantID:           tenantID,
		Plan:               plan.TierPro,
		Status:             metering.StatusActive,
		CurrentPeriodStart: &periodStart,
		CurrentPeriodEnd:   &periodEnd,
		CancelAtPeriodEnd:  true,
		AddOns:             map[plan.Metric]int64{plan.MetricLeads: 500},
		Trial: &metering.TrialState{
			StartedAt:            periodStart.AddDate(0, 0, -7),
			EndsAt:               periodStart,
			EndedAt:              &endedAt,
			EndedReason:          metering.TrialEndMilestone,
			PublishedLandingPage: true,
			LeadCaptured:         true,
			AIConversationCount:  12,
		},
		CreatedAt: periodStart,
		UpdatedAt: periodEnd,
	}

	doc := toSubscriptionDoc(sub)
	assert.Equal(t, tenantID.String(), doc.TenantID)
	assert.Equal(t, "pro", doc.Plan)

	decoded, err := fromSubscriptionDoc(doc)
	require.NoError(t, err)
	assert.Equal(t, sub.TenantID, decoded.TenantID)
	assert.Equal(t, sub.Plan, decoded.Plan)
	assert.Equal(t, sub.Status, decoded.Status)
	assert.True(t, decoded.CancelAtPeriodEnd)
	assert.Equal(t, int64(500), decoded.AddOns[plan.MetricLeads])
	require.NotNil(t, decoded.Trial)
	assert.Equal(t, metering.TrialEndMilestone, decoded.Trial.EndedReason)
	assert.True(t, decoded.Trial.EndedAt.Equal(endedAt))
}

func TestFromSubscriptionDocDefaults(t *testing.T) {
	t.Parallel()

	t.Run("sparse document decodes with safe defaults", func(t *testing.T) {
		t.Parallel()

		decoded, err := fromSubscriptionDoc(subscriptionDoc{TenantID: uuid.NewString()})
		require.NoError(t, err)
		assert.NotNil(t, decoded.AddOns)
		assert.Empty(t, decoded.AddOns)
		assert.Nil(t, decoded.Trial)
	})

	t.Run("malformed tenant id", func(t *testing.T) {
		t.Parallel()

		_, err := fromSubscriptionDoc(subscriptionDoc{TenantID: "not-a-uuid"})
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})
}

func TestUsageDocHelpers(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	assert.Equal(t, tenantID.String()+":2024-05", usageDocID(tenantID, "2024-05"))
	assert.Equal(t, tenantID.String()+":total", usageDocID(tenantID, plan.TotalPeriodKey))

	counters := countersFromDoc(usageDoc{Counters: map[string]int64{"leads": 7, "emails": 3}})
	assert.Equal(t, int64(7), counters[plan.MetricLeads])
	assert.Equal(t, int64(3), counters[plan.MetricEmails])

	assert.Empty(t, countersFromDoc(usageDoc{}))
}
