package plan

import "time"

// Tier identifies a subscription plan tier.
type Tier string

// Tiers in ascending order of capability.
const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierScale   Tier = "scale"
)

// tierOrder drives upgrade resolution and fail-closed fallback.
var tierOrder = []Tier{TierFree, TierStarter, TierPro, TierScale}

// Metric represents a countable tenant resource governed by a per-plan limit.
type Metric string

const (
	MetricLandingPages    Metric = "landing_pages"
	MetricLeads           Metric = "leads"
	MetricCampaigns       Metric = "campaigns"
	MetricAIConversations Metric = "ai_conversations"
	MetricSeats           Metric = "seats"
	MetricEmails          Metric = "emails"
	MetricTexts           Metric = "texts"
	MetricDomains         Metric = "domains"
	MetricAIAgents        Metric = "ai_agents"
)

const (
	// Unlimited indicates no limit for a metric (-1 chosen for SQL compatibility).
	Unlimited int64 = -1
)

// Period classifies how a metric's usage counter resets over time.
type Period string

const (
	// PeriodMonthly counters reset every calendar month.
	PeriodMonthly Period = "monthly"
	// PeriodTotal counters accumulate for the lifetime of the tenant.
	PeriodTotal Period = "total"
)

// TotalPeriodKey is the fixed period key for lifetime counters.
const TotalPeriodKey = "total"

// metricPeriods classifies every known metric. Metrics absent from this
// table are treated as monthly, the stricter of the two classes.
var metricPeriods = map[Metric]Period{
	MetricLandingPages:    PeriodMonthly,
	MetricLeads:           PeriodTotal,
	MetricCampaigns:       PeriodMonthly,
	MetricAIConversations: PeriodMonthly,
	MetricSeats:           PeriodTotal,
	MetricEmails:          PeriodMonthly,
	MetricTexts:           PeriodMonthly,
	MetricDomains:         PeriodTotal,
	MetricAIAgents:        PeriodTotal,
}

// PeriodOf returns the reset period class for a metric.
func PeriodOf(m Metric) Period {
	if p, ok := metricPeriods[m]; ok {
		return p
	}
	return PeriodMonthly
}

// PeriodKey returns the usage-counter key for a metric at a given instant:
// "total" for lifetime metrics, a "YYYY-MM" string for monthly ones.
func PeriodKey(m Metric, now time.Time) string {
	if PeriodOf(m) == PeriodTotal {
		return TotalPeriodKey
	}
	return now.UTC().Format("2006-01")
}

// Metrics returns all known metrics in a stable order.
func Metrics() []Metric {
	return []Metric{
		MetricLandingPages,
		MetricLeads,
		MetricCampaigns,
		MetricAIConversations,
		MetricSeats,
		MetricEmails,
		MetricTexts,
		MetricDomains,
		MetricAIAgents,
	}
}

// addOnEligible lists metrics that can carry add-on allowances on top of
// the plan's base limit.
var addOnEligible = map[Metric]bool{
	MetricLeads:  true,
	MetricEmails: true,
	MetricTexts:  true,
	MetricSeats:  true,
}

// AddOnEligible reports whether extra allowance can be purchased for a metric.
func AddOnEligible(m Metric) bool {
	return addOnEligible[m]
}

// Feature is a plan-specific capability flag.
type Feature string

const (
	FeatureAdSync       Feature = "ad_sync"
	FeatureAIAgents     Feature = "ai_agents"
	FeatureCustomDomain Feature = "custom_domain"
	FeatureWhiteLabel   Feature = "white_label"
	FeatureAnalytics    Feature = "analytics"
	FeatureAPI          Feature = "api"
)

// Money represents a monetary amount in the smallest currency unit.
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}
