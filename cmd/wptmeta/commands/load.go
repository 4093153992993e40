package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/wptmeta/config"
)

// loadConfig reads the --config file when given, the default cascade otherwise
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
