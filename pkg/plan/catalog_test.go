package plan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

func TestCatalogResolve(t *testing.T) {
	t.Parallel()

	catalog := plan.Default()

	t.Run("known tiers resolve to themselves", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, plan.TierFree, catalog.Resolve("free"))
		assert.Equal(t, plan.TierStarter, catalog.Resolve("starter"))
		assert.Equal(t, plan.TierPro, catalog.Resolve("pro"))
		assert.Equal(t, plan.TierScale, catalog.Resolve("scale"))
	})

	t.Run("unrecognized identifiers fail closed to the lowest tier", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, plan.TierFree, catalog.Resolve(""))
		assert.Equal(t, plan.TierFree, catalog.Resolve("enterprise"))
		assert.Equal(t, plan.TierFree, catalog.Resolve("PRO"))
	})

	t.Run("unknown tier never grants unlimited", func(t *testing.T) {
		t.Parallel()

		p := catalog.Plan(plan.Tier("made-up"))
		assert.Equal(t, plan.TierFree, p.Tier)
		for metric, limit := range p.Limits {
			assert.NotEqual(t, plan.Unlimited, limit, "metric %s", metric)
		}
	})
}

func TestCatalogLookups(t *testing.T) {
	t.Parallel()

	catalog := plan.Default()

	t.Run("limits", func(t *testing.T) {
		t.Parallel()

		limits := catalog.LimitsFor(plan.TierScale)
		assert.Equal(t, plan.Unlimited, limits[plan.MetricLeads])
		assert.Equal(t, int64(25000), limits[plan.MetricAIConversations])
	})

	t.Run("metric missing from limit table resolves to zero", func(t *testing.T) {
		t.Parallel()

		p := catalog.Plan(plan.TierFree)
		assert.Equal(t, int64(0), p.LimitFor(plan.Metric("not_a_metric")))
	})

	t.Run("features", func(t *testing.T) {
		t.Parallel()

		assert.False(t, catalog.HasFeature(plan.TierFree, plan.FeatureAdSync))
		assert.True(t, catalog.HasFeature(plan.TierPro, plan.FeatureAdSync))
		assert.True(t, catalog.HasFeature(plan.TierScale, plan.FeatureWhiteLabel))
	})

	t.Run("prices ascend", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, int64(0), catalog.PriceFor(plan.TierFree).Amount)
		assert.Less(t, catalog.PriceFor(plan.TierStarter).Amount, catalog.PriceFor(plan.TierPro).Amount)
	})

	t.Run("upgrade pointers", func(t *testing.T) {
		t.Parallel()

		next, ok := catalog.UpgradeFor(plan.TierFree)
		require.True(t, ok)
		assert.Equal(t, plan.TierStarter, next)

		next, ok = catalog.UpgradeFor(plan.TierPro)
		require.True(t, ok)
		assert.Equal(t, plan.TierScale, next)

		_, ok = catalog.UpgradeFor(plan.TierScale)
		assert.False(t, ok)

		// Unknown tiers resolve to free first, so the upgrade is starter.
		next, ok = catalog.UpgradeFor(plan.Tier("bogus"))
		require.True(t, ok)
		assert.Equal(t, plan.TierStarter, next)
	})
}

func TestNewCatalogValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing tier", func(t *testing.T) {
		t.Parallel()

		plans := map[plan.Tier]plan.Plan{
			plan.TierFree: {Tier: plan.TierFree},
		}
		_, err := plan.NewCatalog(plans)
		assert.ErrorIs(t, err, plan.ErrInvalidCatalog)
	})

	t.Run("tier mismatch", func(t *testing.T) {
		t.Parallel()

		plans := fullPlans()
		p := plans[plan.TierPro]
		p.Tier = plan.TierFree
		plans[plan.TierPro] = p

		_, err := plan.NewCatalog(plans)
		assert.ErrorIs(t, err, plan.ErrInvalidCatalog)
	})

	t.Run("invalid limit", func(t *testing.T) {
		t.Parallel()

		plans := fullPlans()
		p := plans[plan.TierFree]
		p.Limits = map[plan.Metric]int64{plan.MetricLeads: -2}
		plans[plan.TierFree] = p

		_, err := plan.NewCatalog(plans)
		assert.ErrorIs(t, err, plan.ErrInvalidCatalog)
	})

	t.Run("catalog is isolated from source mutations", func(t *testing.T) {
		t.Parallel()

		plans := fullPlans()
		p := plans[plan.TierFree]
		p.Limits = map[plan.Metric]int64{plan.MetricLeads: 10}
		plans[plan.TierFree] = p

		catalog, err := plan.NewCatalog(plans)
		require.NoError(t, err)

		p.Limits[plan.MetricLeads] = plan.Unlimited
		assert.Equal(t, int64(10), catalog.Plan(plan.TierFree).LimitFor(plan.MetricLeads))
	})
}

func TestPeriodKey(t *testing.T) {
	t.Parallel()

	jan := time.Date(2024, time.January, 15, 10, 30, 0, 0, time.UTC)
	feb := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01", plan.PeriodKey(plan.MetricLandingPages, jan))
	assert.Equal(t, "2024-02", plan.PeriodKey(plan.MetricLandingPages, feb))
	assert.Equal(t, plan.TotalPeriodKey, plan.PeriodKey(plan.MetricLeads, jan))
	assert.Equal(t, plan.TotalPeriodKey, plan.PeriodKey(plan.MetricLeads, feb))

	// Unknown metrics classify as monthly, the stricter class.
	assert.Equal(t, "2024-01", plan.PeriodKey(plan.Metric("mystery"), jan))
}

func TestAddOnEligible(t *testing.T) {
	t.Parallel()

	assert.True(t, plan.AddOnEligible(plan.MetricLeads))
	assert.True(t, plan.AddOnEligible(plan.MetricEmails))
	assert.False(t, plan.AddOnEligible(plan.MetricLandingPages))
	assert.False(t, plan.AddOnEligible(plan.Metric("mystery")))
}

// fullPlans returns a minimal valid plan set covering every tier.
func fullPlans() map[plan.Tier]plan.Plan {
	return map[plan.Tier]plan.Plan{
		plan.TierFree:    {Tier: plan.TierFree, Name: "Free"},
		plan.TierStarter: {Tier: plan.TierStarter, Name: "Starter"},
		plan.TierPro:     {Tier: plan.TierPro, Name: "Pro"},
		plan.TierScale:   {Tier: plan.TierScale, Name: "Scale"},
	}
}
