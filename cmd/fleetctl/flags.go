package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bgricker/fleetctl/internal/config"
)

func gatherFlags(flags *pflag.FlagSet) (config.FlagValues, error) {
	var values config.FlagValues

	if flags.Changed("ir-only") {
		v, err := flags.GetBool("ir-only")
		if err != nil {
			return values, fmt.Errorf("parse --ir-only: %w", err)
		}
		values.Reduced = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("window") {
		v, err := flags.GetDuration("window")
		if err != nil {
			return values, fmt.Errorf("parse --window: %w", err)
		}
		values.Window = config.DurationFlag{Value: v, Set: true}
	}

	if flags.Changed("size") {
		v, err := flags.GetInt("size")
		if err != nil {
			return values, fmt.Errorf("parse --size: %w", err)
		}
		values.Size = config.IntFlag{Value: v, Set: true}
	}

	if flags.Changed("concurrency") {
		v, err := flags.GetInt("concurrency")
		if err != nil {
			return values, fmt.Errorf("parse --concurrency: %w", err)
		}
		values.Concurrency = config.IntFlag{Value: v, Set: true}
	}

	if flags.Changed("data-dir") {
		v, err := flags.GetString("data-dir")
		if err != nil {
			return values, fmt.Errorf("parse --data-dir: %w", err)
		}
		values.DataDir = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("archive") {
		v, err := flags.GetBool("archive")
		if err != nil {
			return values, fmt.Errorf("parse --archive: %w", err)
		}
		values.Archive = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("metrics-textfile") {
		v, err := flags.GetString("metrics-textfile")
		if err != nil {
			return values, fmt.Errorf("parse --metrics-textfile: %w", err)
		}
		values.MetricsTextfile = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("format") {
		v, err := flags.GetString("format")
		if err != nil {
			return values, fmt.Errorf("parse --format: %w", err)
		}
		values.Format = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("verbose") {
		v, err := flags.GetBool("verbose")
		if err != nil {
			return values, fmt.Errorf("parse --verbose: %w", err)
		}
		values.Verbose = config.BoolFlag{Value: v, Set: true}
	}

	return values, nil
}

// loadConfig applies defaults, the config file, FLEETCTL_* variables and
// explicit flags in that order.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("parse --config: %w", err)
	}
	cfg, err := config.Load(path, path != "")
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ApplyEnv(cmd.Context(), &cfg, a.lookup); err != nil {
		return config.Config{}, err
	}

	flags, err := gatherFlags(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	config.ApplyFlags(&cfg, flags)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
