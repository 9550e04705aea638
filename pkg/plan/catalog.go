package plan

import (
	"errors"
	"fmt"
)

// Catalog is the immutable table of plan tiers. It is built once at process
// start and read freely by any number of goroutines without synchronization.
type Catalog struct {
	plans map[Tier]Plan
}

// NewCatalog builds a catalog from the given plans. Every tier in tierOrder
// must be present so that fail-closed fallback and upgrade pointers are
// always resolvable.
func NewCatalog(plans map[Tier]Plan) (*Catalog, error) {
	if err := validate(plans); err != nil {
		return nil, err
	}

	cp := make(map[Tier]Plan, len(plans))
	for tier, p := range plans {
		cp[tier] = p.clone()
	}
	return &Catalog{plans: cp}, nil
}

// Resolve maps an arbitrary plan identifier to a known tier. Unrecognized
// identifiers fail closed to the lowest tier, never to unlimited access.
func (c *Catalog) Resolve(id string) Tier {
	tier := Tier(id)
	if _, ok := c.plans[tier]; ok {
		return tier
	}
	return TierFree
}

// Plan returns the plan for a tier, falling back to the lowest tier for
// unrecognized values.
func (c *Catalog) Plan(tier Tier) Plan {
	if p, ok := c.plans[tier]; ok {
		return p
	}
	return c.plans[TierFree]
}

// LimitsFor returns the per-metric limit table for a tier.
func (c *Catalog) LimitsFor(tier Tier) map[Metric]int64 {
	return c.Plan(tier).Limits
}

// FeaturesFor returns the feature flags granted by a tier.
func (c *Catalog) FeaturesFor(tier Tier) []Feature {
	return c.Plan(tier).Features
}

// PriceFor returns the monthly price of a tier.
func (c *Catalog) PriceFor(tier Tier) Money {
	return c.Plan(tier).MonthlyPrice
}

// UpgradeFor returns the next-higher tier, or ok=false for the top tier.
func (c *Catalog) UpgradeFor(tier Tier) (Tier, bool) {
	resolved := c.Resolve(string(tier))
	for i, t := range tierOrder {
		if t == resolved {
			if i+1 < len(tierOrder) {
				return tierOrder[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// HasFeature reports whether a tier grants the named feature.
func (c *Catalog) HasFeature(tier Tier, f Feature) bool {
	return c.Plan(tier).HasFeature(f)
}

func validate(plans map[Tier]Plan) error {
	for _, tier := range tierOrder {
		p, ok := plans[tier]
		if !ok {
			return errors.Join(ErrInvalidCatalog, fmt.Errorf("missing tier %q", tier))
		}
		if p.Tier != tier {
			return errors.Join(ErrInvalidCatalog,
				fmt.Errorf("tier mismatch: map key %q != plan tier %q", tier, p.Tier))
		}
		for metric, limit := range p.Limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidCatalog,
					fmt.Errorf("tier %q has invalid limit %d for metric %q", tier, limit, metric))
			}
		}
	}
	for tier := range plans {
		known := false
		for _, t := range tierOrder {
			if t == tier {
				known = true
				break
			}
		}
		if !known {
			return errors.Join(ErrInvalidCatalog, fmt.Errorf("unknown tier %q", tier))
		}
	}
	return nil
}

// Default returns the built-in catalog used when no catalog file is supplied.
func Default() *Catalog {
	c, err := NewCatalog(map[Tier]Plan{
		TierFree: {
			Tier: TierFree,
			Name: "Free",
			Limits: map[Metric]int64{
				MetricLandingPages:    1,
				MetricLeads:           100,
				MetricCampaigns:       1,
				MetricAIConversations: 25,
				MetricSeats:           1,
				MetricEmails:          200,
				MetricTexts:           0,
				MetricDomains:         0,
				MetricAIAgents:        1,
			},
			MonthlyPrice: Money{Amount: 0, Currency: "USD"},
		},
		TierStarter: {
			Tier: TierStarter,
			Name: "Starter",
			Limits: map[Metric]int64{
				MetricLandingPages:    10,
				MetricLeads:           2500,
				MetricCampaigns:       5,
				MetricAIConversations: 250,
				MetricSeats:           3,
				MetricEmails:          5000,
				MetricTexts:           500,
				MetricDomains:         1,
				MetricAIAgents:        1,
			},
			Features:     []Feature{FeatureAnalytics, FeatureCustomDomain},
			MonthlyPrice: Money{Amount: 2900, Currency: "USD"},
		},
		TierPro: {
			Tier: TierPro,
			Name: "Pro",
			Limits: map[Metric]int64{
				MetricLandingPages:    50,
				MetricLeads:           25000,
				MetricCampaigns:       25,
				MetricAIConversations: 2500,
				MetricSeats:           10,
				MetricEmails:          50000,
				MetricTexts:           5000,
				MetricDomains:         5,
				MetricAIAgents:        5,
			},
			Features: []Feature{
				FeatureAnalytics, FeatureCustomDomain, FeatureAdSync,
				FeatureAIAgents, FeatureAPI,
			},
			MonthlyPrice: Money{Amount: 9900, Currency: "USD"},
		},
		TierScale: {
			Tier: TierScale,
			Name: "Scale",
			Limits: map[Metric]int64{
				MetricLandingPages:    Unlimited,
				MetricLeads:           Unlimited,
				MetricCampaigns:       Unlimited,
				MetricAIConversations: 25000,
				MetricSeats:           Unlimited,
				MetricEmails:          Unlimited,
				MetricTexts:           50000,
				MetricDomains:         Unlimited,
				MetricAIAgents:        Unlimited,
			},
			Features: []Feature{
				FeatureAnalytics, FeatureCustomDomain, FeatureAdSync,
				FeatureAIAgents, FeatureAPI, FeatureWhiteLabel,
			},
			MonthlyPrice: Money{Amount: 29900, Currency: "USD"},
		},
	})
	if err != nil {
		panic(err) // built-in catalog must always validate
	}
	return c
}
