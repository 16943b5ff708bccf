package reconciliation

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/livestatement/backend/internal/domain/ledger"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed metrics.yaml
var defaultCatalogYAML []byte

// DefaultProvider is the catalog entry used for providers without their own list
const DefaultProvider = "default"

// Metric is one reconciled figure and the line descriptions that feed it.
// A line counts toward a metric when its case-folded description equals one of
// the metric's descriptions or starts with one, so vendor suffixes such as
// "Gross Uber rides fares1" still land on "Gross Uber rides fares".
type Metric struct {
	Key          string          `yaml:"key"`
	LineType     ledger.LineType `yaml:"lineType"`
	Descriptions []string        `yaml:"descriptions"`

	folded []string
}

// Matches reports whether a statement line description counts toward the metric
func (m *Metric) Matches(description string) bool {
	d := fold(description)
	return m.matchesExactly(d) || m.matchesPrefix(d)
}

func (m *Metric) matchesExactly(folded string) bool {
	for _, want := range m.folded {
		if folded == want {
			return true
		}
	}
	return false
}

func (m *Metric) matchesPrefix(folded string) bool {
	for _, want := range m.folded {
		if strings.HasPrefix(folded, want) {
			return true
		}
	}
	return false
}

// metricFor returns the index of the metric a line description counts toward:
// the first metric matching it exactly, else the first one it starts with, else -1
func metricFor(metrics []MetricResult, description string) int {
	d := fold(description)
	for i := range metrics {
		if metrics[i].Metric.matchesExactly(d) {
			return i
		}
	}
	for i := range metrics {
		if metrics[i].Metric.matchesPrefix(d) {
			return i
		}
	}
	return -1
}

// Catalog is the per-provider metric allow-list
type Catalog struct {
	Providers map[string][]Metric `yaml:"providers"`
}

// ParseCatalog decodes and validates a YAML metric catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse metric catalog: %w", err)
	}
	if len(c.Providers) == 0 {
		return nil, fmt.Errorf("metric catalog has no providers")
	}

	normalized := make(map[string][]Metric, len(c.Providers))
	for provider, metrics := range c.Providers {
		seen := make(map[string]bool, len(metrics))
		for i := range metrics {
			m := &metrics[i]
			if m.Key == "" {
				return nil, fmt.Errorf("provider %s: metric %d has no key", provider, i+1)
			}
			if seen[m.Key] {
				return nil, fmt.Errorf("provider %s: duplicate metric %s", provider, m.Key)
			}
			seen[m.Key] = true
			if !m.LineType.IsValid() {
				return nil, fmt.Errorf("provider %s: metric %s has invalid line type %q", provider, m.Key, m.LineType)
			}
			if len(m.Descriptions) == 0 {
				return nil, fmt.Errorf("provider %s: metric %s has no descriptions", provider, m.Key)
			}
			m.folded = make([]string, len(m.Descriptions))
			for j, desc := range m.Descriptions {
				m.folded[j] = fold(desc)
			}
		}
		normalized[NormalizeProvider(provider)] = metrics
	}
	c.Providers = normalized
	return &c, nil
}

// DefaultCatalog returns the built-in metric catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// MetricsFor returns the provider's metrics, falling back to the default list
func (c *Catalog) MetricsFor(provider string) []Metric {
	if metrics, ok := c.Providers[NormalizeProvider(provider)]; ok {
		return metrics
	}
	return c.Providers[DefaultProvider]
}

func fold(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
