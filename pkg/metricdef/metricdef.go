// Package metricdef loads the metric-definition file shared with the
// exporter under test. The exporter registers one metric per definition; the
// checker uses the same definitions to compute the expected exposition
// records independently.
package metricdef

import (
	"fmt"
	"os"

	"checker/pkg/exposition"

	yaml "gopkg.in/yaml.v3"
)

// Metric is one expected metric: a name, a declared type, the raw values
// backing it and the labels attached to it.
type Metric struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Values []float64         `yaml:"values"`
	Labels map[string]string `yaml:"labels"`
}

// FamilyConfig mirrors the exporter's per-family relabeling options.
type FamilyConfig struct {
	Name            string   `yaml:"name"`
	RegexName       string   `yaml:"regex_name"`
	AggregateLabels []string `yaml:"aggregate_labels"`
}

// Config is the full metric-definition file.
type Config struct {
	Metrics       []Metric       `yaml:"metrics"`
	FamilyConfigs []FamilyConfig `yaml:"metric_family_config"`
}

// Load reads and decodes a metric-definition file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metric definitions: %w", err)
	}
	conf := &Config{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("decoding metric definitions %s: %w", path, err)
	}
	return conf, nil
}

// Record computes the exposition record this definition is expected to
// produce. Gauges and counters carry exactly one value; histograms are
// rebuilt from the raw values the exporter observed.
func (m Metric) Record(fullName string) (exposition.Record, error) {
	switch m.Type {
	case "gauge", "counter":
		if len(m.Values) != 1 {
			return exposition.Record{}, fmt.Errorf("metric %s: %s needs exactly one value, got %d",
				m.Name, m.Type, len(m.Values))
		}
		return exposition.NewScalar(fullName, m.Values[0], m.Labels), nil
	case "histogram":
		return exposition.FromSamples(fullName, m.Values), nil
	default:
		return exposition.Record{}, fmt.Errorf("metric %s: unsupported type: %s", m.Name, m.Type)
	}
}
