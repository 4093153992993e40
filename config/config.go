// Package config loads wptmeta settings from TOML files, WPTMETA_* environment
// variables and defaults, using Viper.
package config

// Config represents the wptmeta configuration
type Config struct {
	Roots  []RootConfig `mapstructure:"roots" toml:"roots" json:"roots" yaml:"roots"`
	Update UpdateConfig `mapstructure:"update" toml:"update" json:"update" yaml:"update"`
	Log    LogConfig    `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
	VCS    VCSConfig    `mapstructure:"vcs" toml:"vcs" json:"vcs" yaml:"vcs"`
}

// RootConfig describes one test root: its catalog and the metadata tree it owns
type RootConfig struct {
	// path to the catalog JSON file
	Catalog  string   `mapstructure:"catalog" toml:"catalog" json:"catalog" yaml:"catalog"`
	// metadata directory holding .ini manifests
	Metadata string   `mapstructure:"metadata" toml:"metadata" json:"metadata" yaml:"metadata"`
	// doublestar globs over test paths; empty = all
	Include  []string `mapstructure:"include" toml:"include,omitempty" json:"include,omitempty" yaml:"include,omitempty"`
}

// UpdateConfig controls how observations are folded into expectations
type UpdateConfig struct {
	// run_info properties, most significant first
	PropertyOrder     []string `mapstructure:"property_order" toml:"property_order" json:"property_order" yaml:"property_order"`
	// rendered as `x` / `not x`
	BooleanProperties []string `mapstructure:"boolean_properties" toml:"boolean_properties" json:"boolean_properties" yaml:"boolean_properties"`
	IgnoreExisting    bool     `mapstructure:"ignore_existing" toml:"ignore_existing" json:"ignore_existing" yaml:"ignore_existing"`
	// 0 = stability mode off
	StabilityRuns     int      `mapstructure:"stability_runs" toml:"stability_runs" json:"stability_runs" yaml:"stability_runs"`
	// value written to `disabled`
	StabilityMessage  string   `mapstructure:"stability_message" toml:"stability_message" json:"stability_message" yaml:"stability_message"`
}

// LogConfig configures diagnostic output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
}

// VCSConfig configures change detection for test files
type VCSConfig struct {
	// git work tree holding the tests
	Repository string `mapstructure:"repository" toml:"repository" json:"repository" yaml:"repository"`
	// repository-relative directory of the "/" test root
	TestsDir   string `mapstructure:"tests_dir" toml:"tests_dir" json:"tests_dir" yaml:"tests_dir"`
}

// StabilityEnabled reports whether repeated-run flakiness handling is on
func (c *Config) StabilityEnabled() bool {
	return c.Update.StabilityRuns > 0
}
