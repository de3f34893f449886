package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "FLEETCTL_"

// envOverrides holds optional environment values; nil fields were not set.
type envOverrides struct {
	FleetSize       *int           `env:"FLEET_SIZE, noinit"`
	HostPattern     *string        `env:"FLEET_HOST_PATTERN, noinit"`
	Domain          *string        `env:"FLEET_DOMAIN, noinit"`
	UserPattern     *string        `env:"FLEET_USER_PATTERN, noinit"`
	Concurrency     *int           `env:"CONCURRENCY, noinit"`
	Window          *time.Duration `env:"WINDOW, noinit"`
	Reduced         *bool          `env:"REDUCED, noinit"`
	DataDir         *string        `env:"DATA_DIR, noinit"`
	LogDir          *string        `env:"LOG_DIR, noinit"`
	Ledger          *string        `env:"LEDGER, noinit"`
	Archive         *bool          `env:"ARCHIVE, noinit"`
	MetricsTextfile *string        `env:"METRICS_TEXTFILE, noinit"`
	Format          *string        `env:"FORMAT, noinit"`
}

// ApplyEnv overlays FLEETCTL_* variables found through lookuper onto cfg. A
// nil lookuper reads the process environment.
func ApplyEnv(ctx context.Context, cfg *Config, lookuper envconfig.Lookuper) error {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var o envOverrides
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &o,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, lookuper),
	}); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setInt(&cfg.Fleet.Size, o.FleetSize)
	setString(&cfg.Fleet.HostPattern, o.HostPattern)
	setString(&cfg.Fleet.Domain, o.Domain)
	setString(&cfg.Fleet.UserPattern, o.UserPattern)
	setInt(&cfg.Concurrency, o.Concurrency)
	if o.Window != nil {
		cfg.Window = *o.Window
	}
	setBool(&cfg.Reduced, o.Reduced)
	setString(&cfg.Paths.DataDir, o.DataDir)
	setString(&cfg.Paths.LogDir, o.LogDir)
	setString(&cfg.Paths.Ledger, o.Ledger)
	setBool(&cfg.Collection.Archive, o.Archive)
	setString(&cfg.Metrics.Textfile, o.MetricsTextfile)
	setString(&cfg.Format, o.Format)
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
