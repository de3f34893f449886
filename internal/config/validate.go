package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var safeName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks cfg for values the controller cannot run with.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Fleet.Size < 1 {
		add("fleet.size must be at least 1, got %d", c.Fleet.Size)
	}
	if !validOrdinalPattern(c.Fleet.HostPattern) {
		add("fleet.host_pattern %q must contain exactly one ordinal verb such as %%d", c.Fleet.HostPattern)
	}
	if strings.Contains(c.Fleet.UserPattern, "%") && !validOrdinalPattern(c.Fleet.UserPattern) {
		add("fleet.user_pattern %q may contain at most one ordinal verb", c.Fleet.UserPattern)
	}
	if strings.Count(c.Remote.Home, "%s") != 1 {
		add("remote.home %q must contain %%s for the user", c.Remote.Home)
	}
	if c.Concurrency < 1 {
		add("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Window < 0 {
		add("window must not be negative, got %s", c.Window)
	}
	if strings.Count(c.Collection.Pattern, "%s") != 1 {
		add("collection.pattern %q must contain %%s for the run date", c.Collection.Pattern)
	}
	for _, dir := range []string{c.Remote.DataDir, c.Remote.LogDir} {
		if !safeName.MatchString(dir) {
			add("remote directory %q must match %s", dir, safeName)
		}
	}

	seen := make(map[string]bool)
	for _, p := range c.Programs {
		if !safeName.MatchString(p.Name) {
			add("program name %q must match %s", p.Name, safeName)
		}
		if !safeName.MatchString(p.Remote) {
			add("program %q remote name %q must match %s", p.Name, p.Remote, safeName)
		}
		if strings.TrimSpace(p.Local) == "" {
			add("program %q has no local path", p.Name)
		}
		if p.Role != RoleSensor && p.Role != RoleImaging {
			add("program %q role %q must be %s or %s", p.Name, p.Role, RoleSensor, RoleImaging)
		}
		if seen[p.Name] {
			add("program %q listed twice", p.Name)
		}
		seen[p.Name] = true
	}
	if len(c.ActivePrograms()) == 0 {
		add("no programs selected for deployment")
	}

	switch strings.ToLower(c.Format) {
	case FormatPretty, FormatJSON:
	default:
		add("unsupported format %q", c.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validOrdinalPattern(pattern string) bool {
	if strings.Count(pattern, "%") != 1 {
		return false
	}
	return !strings.Contains(fmt.Sprintf(pattern, 1), "%!")
}
