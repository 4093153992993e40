package config

import (
	"strings"

	"github.com/teranos/wptmeta/errors"
)

// Validate checks that the configuration is usable for an update run
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return errors.WithHint(errors.New("no test roots configured"),
			"add a [[roots]] table with catalog and metadata paths")
	}

	seen := make(map[string]bool)
	for i, root := range c.Roots {
		if strings.TrimSpace(root.Catalog) == "" {
			return errors.Newf("roots[%d].catalog cannot be empty", i)
		}
		if strings.TrimSpace(root.Metadata) == "" {
			return errors.Newf("roots[%d].metadata cannot be empty", i)
		}
		if seen[root.Metadata] {
			return errors.Newf("roots[%d].metadata %q is used by another root", i, root.Metadata)
		}
		seen[root.Metadata] = true
	}

	// Stability runs: 0 = off, negative = invalid
	if c.Update.StabilityRuns < 0 {
		return errors.Newf("update.stability_runs must be >= 0, got %d", c.Update.StabilityRuns)
	}

	if len(c.Update.PropertyOrder) == 0 {
		return errors.New("update.property_order cannot be empty")
	}
	order := make(map[string]bool, len(c.Update.PropertyOrder))
	for _, prop := range c.Update.PropertyOrder {
		if order[prop] {
			return errors.Newf("update.property_order lists %q twice", prop)
		}
		order[prop] = true
	}
	for _, prop := range c.Update.BooleanProperties {
		if !order[prop] {
			return errors.Newf("update.boolean_properties entry %q is not in update.property_order", prop)
		}
	}

	return nil
}
