package plan

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of a versioned plan catalog.
type catalogFile struct {
	Version int                 `yaml:"version"`
	Plans   map[string]planFile `yaml:"plans"`
}

type planFile struct {
	Name         string           `yaml:"name"`
	Limits       map[string]int64 `yaml:"limits"`
	Features     []string         `yaml:"features"`
	MonthlyPrice Money            `yaml:"monthly_price"`
}

// LoadFile reads a plan catalog from a YAML file. The file must define every
// tier; limits default to 0 for metrics it omits, keeping unknown input
// fail closed.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	return parseCatalog(raw)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}

	plans := make(map[Tier]Plan, len(file.Plans))
	for id, pf := range file.Plans {
		tier := Tier(id)
		p := Plan{
			Tier:         tier,
			Name:         pf.Name,
			Limits:       make(map[Metric]int64, len(pf.Limits)),
			MonthlyPrice: pf.MonthlyPrice,
		}
		for metric, limit := range pf.Limits {
			p.Limits[Metric(metric)] = limit
		}
		for _, f := range pf.Features {
			p.Features = append(p.Features, Feature(f))
		}
		plans[tier] = p
	}

	catalog, err := NewCatalog(plans)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	return catalog, nil
}
