package metering_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

func TestPlanLimitError(t *testing.T) {
	t.Parallel()

	limitErr := &metering.PlanLimitError{
		Metric:           plan.MetricLeads,
		Limit:            100,
		CurrentUsage:     100,
		Plan:             plan.TierFree,
		Status:           metering.StatusActive,
		SuggestedUpgrade: plan.TierStarter,
	}

	t.Run("matches the sentinel", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, limitErr, metering.ErrLimitReached)
		assert.ErrorIs(t, fmt.Errorf("enforce: %w", limitErr), metering.ErrLimitReached)
		assert.NotErrorIs(t, limitErr, metering.ErrFeatureLocked)
	})

	t.Run("wire shape", func(t *testing.T) {
		t.Parallel()

		raw, err := json.Marshal(limitErr)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"error": "limit_reached",
			"limit_type": "leads",
			"current_usage": 100,
			"allowed_limit": 100,
			"suggested_upgrade": "starter"
		}`, string(raw))
	})

	t.Run("unlimited limit renders as null", func(t *testing.T) {
		t.Parallel()

		raw, err := json.Marshal(&metering.PlanLimitError{
			Metric:       plan.MetricLeads,
			Limit:        plan.Unlimited,
			CurrentUsage: 7,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"error": "limit_reached",
			"limit_type": "leads",
			"current_usage": 7,
			"allowed_limit": null
		}`, string(raw))
	})

	t.Run("message carries the context", func(t *testing.T) {
		t.Parallel()

		msg := limitErr.Error()
		assert.Contains(t, msg, "leads")
		assert.Contains(t, msg, "limit=100")
	})
}

func TestFeatureAccessError(t *testing.T) {
	t.Parallel()

	featErr := &metering.FeatureAccessError{
		Feature:          plan.FeatureAdSync,
		Plan:             plan.TierFree,
		SuggestedUpgrade: plan.TierStarter,
	}

	t.Run("matches the sentinel", func(t *testing.T) {
		t.Parallel()

		assert.ErrorIs(t, featErr, metering.ErrFeatureLocked)
		assert.NotErrorIs(t, featErr, metering.ErrLimitReached)
	})

	t.Run("wire shape", func(t *testing.T) {
		t.Parallel()

		raw, err := json.Marshal(featErr)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"error": "feature_locked",
			"feature": "ad_sync",
			"plan": "free",
			"suggested_upgrade": "starter"
		}`, string(raw))
	})

	t.Run("top tier omits the upgrade", func(t *testing.T) {
		t.Parallel()

		raw, err := json.Marshal(&metering.FeatureAccessError{
			Feature: plan.FeatureWhiteLabel,
			Plan:    plan.TierScale,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"error": "feature_locked",
			"feature": "white_label",
			"plan": "scale"
		}`, string(raw))
	})
}

func TestSentinelIdentity(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		metering.ErrLimitReached,
		metering.ErrFeatureLocked,
		metering.ErrSubscriptionNotFound,
		metering.ErrInvalidIncrement,
		metering.ErrStoreFailure,
		metering.ErrTxConflict,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
	assert.ErrorIs(t, errors.Join(metering.ErrTxConflict, errors.New("serialization failure")), metering.ErrTxConflict)
}
