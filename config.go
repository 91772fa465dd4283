package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entro314-labs/nookfb/internal/config"
)

type globalFlags struct {
	configPath string
	adbPath    string
	verbose    bool
}

func (f *globalFlags) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&f.adbPath, "adb", "", "Path to the adb executable")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug output")
}

// resolveConfig loads the config file, if any, and applies flag overrides.
func resolveConfig(cmd *cobra.Command, f globalFlags) (config.Config, error) {
	cfg := config.Default()
	if path, ok, err := config.ResolvePath(f.configPath); err != nil {
		return config.Config{}, fmt.Errorf("resolve config: %w", err)
	} else if ok {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("adb") {
		cfg.ADBPath = f.adbPath
	}

	normalized, err := cfg.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return normalized, nil
}
