package plan

import "maps"

// Plan describes a single tier: its per-metric limits, feature flags and
// monthly price. Plans are pure data; all instances are treated as
// immutable once the catalog is built.
type Plan struct {
	Tier         Tier
	Name         string
	Limits       map[Metric]int64 // -1 represents unlimited
	Features     []Feature
	MonthlyPrice Money
}

// LimitFor returns the plan's base limit for a metric. Metrics missing from
// the limit table resolve to 0, never to unlimited.
func (p Plan) LimitFor(m Metric) int64 {
	limit, ok := p.Limits[m]
	if !ok {
		return 0
	}
	return limit
}

// HasFeature reports whether the plan grants the named feature.
func (p Plan) HasFeature(f Feature) bool {
	for _, feat := range p.Features {
		if feat == f {
			return true
		}
	}
	return false
}

func (p Plan) clone() Plan {
	cp := p
	cp.Limits = maps.Clone(p.Limits)
	cp.Features = append([]Feature(nil), p.Features...)
	return cp
}
