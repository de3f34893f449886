// Package filter selects devices of the fixed fleet by hostname pattern.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bgricker/fleetctl/internal/fleet"
)

// ErrInvalidPattern is returned for selectors that cannot name a device.
var ErrInvalidPattern = errors.New("invalid device pattern")

// Pattern represents a compiled filter condition supporting ordinal,
// substring and regex matching.
type Pattern struct {
	raw     string
	regex   *regexp.Regexp
	lower   string
	ordinal int
	byIndex bool
}

// Compile transforms raw pattern strings into Pattern values. A bare number
// selects that ordinal, /expr/ is a regular expression, anything else is a
// case-insensitive substring.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil {
			if n < 1 {
				return nil, fmt.Errorf("%w: ordinal %q must be at least 1", ErrInvalidPattern, raw)
			}
			result = append(result, Pattern{raw: raw, ordinal: n, byIndex: true})
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			expr := raw[1 : len(raw)-1]
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

// Match reports whether the pattern matches the device.
func (p Pattern) Match(d *fleet.Device) bool {
	if d == nil {
		return false
	}
	if p.byIndex {
		return d.Ordinal == p.ordinal
	}
	if p.regex != nil {
		return p.regex.MatchString(d.Hostname)
	}
	return strings.Contains(strings.ToLower(d.Hostname), p.lower)
}

func (p Pattern) String() string {
	return p.raw
}

// Devices returns the devices matching any pattern, preserving order. No
// patterns selects every device.
func Devices(devices []*fleet.Device, patterns []Pattern) []*fleet.Device {
	if len(patterns) == 0 {
		return devices
	}
	result := make([]*fleet.Device, 0, len(devices))
	for _, d := range devices {
		for _, p := range patterns {
			if p.Match(d) {
				result = append(result, d)
				break
			}
		}
	}
	return result
}
