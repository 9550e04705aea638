package plan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

const validCatalogYAML = `version: 1
plans:
  free:
    name: Free
    limits:
      landing_pages: 1
      leads: 50
    monthly_price:
      amount: 0
      currency: USD
  starter:
    name: Starter
    limits:
      landing_pages: 10
      leads: 1000
    features:
      - analytics
    monthly_price:
      amount: 1900
      currency: USD
  pro:
    name: Pro
    limits:
      landing_pages: 50
      leads: -1
    features:
      - analytics
      - ad_sync
    monthly_price:
      amount: 7900
      currency: USD
  scale:
    name: Scale
    limits:
      landing_pages: -1
      leads: -1
    features:
      - analytics
      - ad_sync
      - white_label
    monthly_price:
      amount: 19900
      currency: USD
`

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	t.Run("valid catalog", func(t *testing.T) {
		t.Parallel()

		catalog, err := plan.LoadFile(writeCatalogFile(t, validCatalogYAML))
		require.NoError(t, err)

		assert.Equal(t, int64(50), catalog.Plan(plan.TierFree).LimitFor(plan.MetricLeads))
		assert.Equal(t, plan.Unlimited, catalog.Plan(plan.TierPro).LimitFor(plan.MetricLeads))
		assert.True(t, catalog.HasFeature(plan.TierPro, plan.FeatureAdSync))
		assert.Equal(t, int64(1900), catalog.PriceFor(plan.TierStarter).Amount)

		// Metrics the file omits fall back to zero, not unlimited.
		assert.Equal(t, int64(0), catalog.Plan(plan.TierFree).LimitFor(plan.MetricEmails))
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := plan.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, plan.ErrFailedToLoadCatalog)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		_, err := plan.LoadFile(writeCatalogFile(t, "plans: ["))
		assert.ErrorIs(t, err, plan.ErrFailedToLoadCatalog)
	})

	t.Run("incomplete tier set", func(t *testing.T) {
		t.Parallel()

		_, err := plan.LoadFile(writeCatalogFile(t, "version: 1\nplans:\n  free:\n    name: Free\n"))
		assert.ErrorIs(t, err, plan.ErrFailedToLoadCatalog)
		assert.ErrorIs(t, err, plan.ErrInvalidCatalog)
	})
}
