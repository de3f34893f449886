package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bgricker/fleetctl/internal/fleet"
)

// Config is the explicit configuration handed to the fleet controller.
type Config struct {
	Fleet       FleetConfig      `yaml:"fleet"`
	Remote      RemoteConfig     `yaml:"remote"`
	Programs    []Program        `yaml:"programs"`
	Reduced     bool             `yaml:"reduced"`
	Paths       PathsConfig      `yaml:"paths"`
	Concurrency int              `yaml:"concurrency"`
	Timeouts    TimeoutConfig    `yaml:"timeouts"`
	Window      time.Duration    `yaml:"window"`
	Collection  CollectionConfig `yaml:"collection"`
	Preflight   PreflightConfig  `yaml:"preflight"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Format      string           `yaml:"format"`
	Verbose     bool             `yaml:"verbose"`
}

// FleetConfig describes the fixed, numbered device set.
type FleetConfig struct {
	Size        int    `yaml:"size"`
	HostPattern string `yaml:"host_pattern"`
	Domain      string `yaml:"domain"`
	UserPattern string `yaml:"user_pattern"`
}

// RemoteConfig describes the device-side layout and the transport clients.
type RemoteConfig struct {
	Home       string   `yaml:"home"`
	DataDir    string   `yaml:"data_dir"`
	LogDir     string   `yaml:"log_dir"`
	Python     string   `yaml:"python"`
	SSHBinary  string   `yaml:"ssh_binary"`
	SCPBinary  string   `yaml:"scp_binary"`
	SSHOptions []string `yaml:"ssh_options"`
}

// Program is a capture program deployed to and launched on every device.
type Program struct {
	Name   string `yaml:"name" json:"name"`
	Local  string `yaml:"local" json:"local"`
	Remote string `yaml:"remote" json:"remote"`
	Role   string `yaml:"role" json:"role"`
}

// PathsConfig holds controller-side locations.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
	LogDir  string `yaml:"log_dir"`
	Ledger  string `yaml:"ledger"`
}

// TimeoutConfig bounds remote calls. Zero means unbounded.
type TimeoutConfig struct {
	Probe    time.Duration `yaml:"probe"`
	Resolve  time.Duration `yaml:"resolve"`
	Command  time.Duration `yaml:"command"`
	Transfer time.Duration `yaml:"transfer"`
	SelfTest time.Duration `yaml:"selftest"`
}

// CollectionConfig controls artifact retrieval.
type CollectionConfig struct {
	Pattern string `yaml:"pattern"`
	Archive bool   `yaml:"archive"`
}

// PreflightConfig controls the on-device hardware checks.
type PreflightConfig struct {
	CameraKeywords []string `yaml:"camera_keywords"`
	SelfTest       []string `yaml:"selftest"`
	SelfTestOK     string   `yaml:"selftest_ok"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

const (
	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"

	// RoleSensor marks programs kept in the reduced artifact set.
	RoleSensor = "sensor"
	// RoleImaging marks programs dropped in the reduced artifact set.
	RoleImaging = "imaging"

	// DefaultPath is read when no --config flag is given.
	DefaultPath = "fleetctl.yml"
)

// Default returns the baseline configuration of the 20-device fleet.
func Default() Config {
	return Config{
		Fleet: FleetConfig{
			Size:        20,
			HostPattern: "pi%d",
			Domain:      "wifi.etsu.edu",
			UserPattern: "pi%d",
		},
		Remote: RemoteConfig{
			Home:       "/home/%s",
			DataDir:    "Data",
			LogDir:     "Logs",
			Python:     "python3",
			SSHBinary:  "ssh",
			SCPBinary:  "scp",
			SSHOptions: []string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=10"},
		},
		Programs: []Program{
			{Name: "IR_Recording", Local: "/home/rpimain/Scripts/IR_Recording.py", Remote: "IR_Recording.py", Role: RoleSensor},
			{Name: "CameraScript", Local: "/home/rpimain/Scripts/20241114_Camera.py", Remote: "CameraScript.py", Role: RoleImaging},
		},
		Paths: PathsConfig{
			DataDir: "/home/rpimain/Data",
			LogDir:  "rollCall_logFiles",
			Ledger:  "/home/rpimain/RpiConnectionData.csv",
		},
		Concurrency: 10,
		Timeouts: TimeoutConfig{
			Probe:    5 * time.Second,
			Resolve:  5 * time.Second,
			Command:  2 * time.Minute,
			Transfer: 30 * time.Minute,
			SelfTest: 10 * time.Second,
		},
		Window: 12 * time.Hour,
		Collection: CollectionConfig{
			Pattern: "%s*.csv",
		},
		Preflight: PreflightConfig{
			CameraKeywords: []string{"camera", "pixel"},
			SelfTest:       []string{"python3", "/home/pi/test_ir_sensor.py"},
			SelfTestOK:     "IR sensor OK",
		},
		Format: FormatPretty,
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// ignored unless required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ActivePrograms returns the programs of the selected artifact set.
func (c Config) ActivePrograms() []Program {
	if !c.Reduced {
		return append([]Program{}, c.Programs...)
	}
	out := make([]Program, 0, len(c.Programs))
	for _, p := range c.Programs {
		if p.Role == RoleSensor {
			out = append(out, p)
		}
	}
	return out
}

// HasRole reports whether any active program has role.
func (c Config) HasRole(role string) bool {
	for _, p := range c.ActivePrograms() {
		if p.Role == role {
			return true
		}
	}
	return false
}

// Naming returns how device identities derive from ordinals.
func (c Config) Naming() fleet.Naming {
	return fleet.Naming{
		HostPattern: c.Fleet.HostPattern,
		Domain:      c.Fleet.Domain,
		UserPattern: c.Fleet.UserPattern,
	}
}

// RemoteHome returns the home directory of user on the device.
func (c Config) RemoteHome(user string) string {
	return fmt.Sprintf(c.Remote.Home, user)
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if flags.Reduced.Set {
		cfg.Reduced = flags.Reduced.Value
	}
	if flags.Window.Set {
		cfg.Window = flags.Window.Value
	}
	if flags.Size.Set {
		cfg.Fleet.Size = flags.Size.Value
	}
	if flags.Concurrency.Set {
		cfg.Concurrency = flags.Concurrency.Value
	}
	if flags.DataDir.Set {
		cfg.Paths.DataDir = flags.DataDir.Value
	}
	if flags.Archive.Set {
		cfg.Collection.Archive = flags.Archive.Value
	}
	if flags.MetricsTextfile.Set {
		cfg.Metrics.Textfile = flags.MetricsTextfile.Value
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Reduced         BoolFlag
	Window          DurationFlag
	Size            IntFlag
	Concurrency     IntFlag
	DataDir         StringFlag
	Archive         BoolFlag
	MetricsTextfile StringFlag
	Format          StringFlag
	Verbose         BoolFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}

// DurationFlag represents a duration flag and whether it was set.
type DurationFlag struct {
	Value time.Duration
	Set   bool
}
