// Package output renders fleet reports for operators and for tooling.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/report"
)

// Renderer writes run reports and fleet listings.
type Renderer interface {
	RenderFleet(rep report.Fleet) error
	RenderList(cfg config.Config, devices []fleet.Device) error
}

// New returns the renderer for format.
func New(format string, out io.Writer) (Renderer, error) {
	switch strings.ToLower(format) {
	case config.FormatPretty, "":
		return NewPretty(out), nil
	case config.FormatJSON:
		return NewJSON(out), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
