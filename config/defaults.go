package config

import (
	"github.com/spf13/viper"
)

// Default property precedence used when building conditional expressions
var DefaultPropertyOrder = []string{"debug", "os", "version", "processor", "bits"}

// Default properties rendered as bare booleans
var DefaultBooleanProperties = []string{"debug"}

const (
	// DefaultStabilityMessage is written to `disabled` for unstable tests
	DefaultStabilityMessage = "unstable"

	// DefaultConfigFileName is the project-level config file name
	DefaultConfigFileName = "wptmeta.toml"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("update.property_order", DefaultPropertyOrder)
	v.SetDefault("update.boolean_properties", DefaultBooleanProperties)
	v.SetDefault("update.ignore_existing", false)
	v.SetDefault("update.stability_runs", 0)
	v.SetDefault("update.stability_message", DefaultStabilityMessage)

	v.SetDefault("log.json", false)

	v.SetDefault("vcs.repository", ".")
	v.SetDefault("vcs.tests_dir", "")
}

// Default returns the configuration produced by defaults alone
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal; a failure here is a programming error
		panic(err)
	}
	return cfg
}
