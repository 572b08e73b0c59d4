package rules

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so catalog files can say "5m" or "90s".
type Duration time.Duration

// UnmarshalYAML parses Go duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// WindowedRuleConfig tunes one counting rule.
type WindowedRuleConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Window    Duration `yaml:"window"`
}

// HighValueConfig tunes the high-value-listing rule.
type HighValueConfig struct {
	Enabled  bool    `yaml:"enabled"`
	MinPrice float64 `yaml:"min_price"`
}

// ErrorRateConfig tunes the system-error-rate rule.
type ErrorRateConfig struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold"`
}

// Catalog is the tuning for the built-in detection rules. Ops can override
// thresholds and windows per deployment without a code change.
type Catalog struct {
	SearchSpike       WindowedRuleConfig `yaml:"search_spike"`
	FilterTrend       WindowedRuleConfig `yaml:"filter_trend"`
	ListingPopularity WindowedRuleConfig `yaml:"listing_popularity"`
	HighValueListing  HighValueConfig    `yaml:"high_value_listing"`
	SystemErrorRate   ErrorRateConfig    `yaml:"system_error_rate"`
}

// DefaultCatalog returns the reference tuning for the built-in rules.
func DefaultCatalog() Catalog {
	return Catalog{
		SearchSpike:       WindowedRuleConfig{Enabled: true, Threshold: 10, Window: Duration(5 * time.Minute)},
		FilterTrend:       WindowedRuleConfig{Enabled: true, Threshold: 15, Window: Duration(10 * time.Minute)},
		ListingPopularity: WindowedRuleConfig{Enabled: true, Threshold: 20, Window: Duration(15 * time.Minute)},
		HighValueListing:  HighValueConfig{Enabled: true, MinPrice: 1000},
		SystemErrorRate:   ErrorRateConfig{Enabled: true, Threshold: 10},
	}
}

// LoadCatalog reads a YAML catalog, overlaying the defaults so partial files
// only need to name the rules they retune.
func LoadCatalog(r io.Reader) (Catalog, error) {
	catalog := DefaultCatalog()

	raw, err := io.ReadAll(r)
	if err != nil {
		return Catalog{}, fmt.Errorf("read rule catalog: %w", err)
	}
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse rule catalog: %w", err)
	}
	return catalog, nil
}
