package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/report"
)

// PrettyRenderer renders run reports in a human-friendly format. Colors are
// only emitted when out is a terminal.
type PrettyRenderer struct {
	out     io.Writer
	ok      lipgloss.Style
	fail    lipgloss.Style
	skip    lipgloss.Style
	heading lipgloss.Style
	dim     lipgloss.Style
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	r := lipgloss.NewRenderer(out)
	return &PrettyRenderer{
		out:     out,
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skip:    r.NewStyle().Foreground(lipgloss.Color("3")),
		heading: r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
	}
}

var phaseTitles = map[report.Phase]string{
	report.PhaseDiscovery:  "Discovery",
	report.PhasePreflight:  "Preflight",
	report.PhaseProvision:  "Provisioning",
	report.PhaseActivation: "Activation",
	report.PhaseCollection: "Collection",
	report.PhaseTeardown:   "Teardown",
}

// RenderFleet shows every phase with a per-device pass/fail line, the
// devices that could not connect and a summary.
func (p *PrettyRenderer) RenderFleet(rep report.Fleet) error {
	var buf bytes.Buffer

	for _, ph := range rep.Phases {
		fmt.Fprintf(&buf, "%s %s\n", p.heading.Render(title(ph.Phase)),
			p.dim.Render(fmt.Sprintf("(%d ok, %d failed, %s)", len(ph.Succeeded), len(ph.Failed), formatDuration(ph.Duration))))
		for _, res := range ph.Results {
			label := res.Hostname
			if res.Step != "" {
				label += " " + res.Step
			}
			line := fmt.Sprintf("  %s %s", p.glyph(res.Outcome), label)
			if detail := describe(res); detail != "" {
				line += "  " + p.dim.Render(detail)
			}
			buf.WriteString(line + "\n")
		}
		if ph.Phase == report.PhaseCollection && len(ph.Failed) > 0 {
			fmt.Fprintf(&buf, "  %s\n", p.fail.Render("failed fetch:"))
			for _, host := range ph.Failed {
				fmt.Fprintf(&buf, "    %s\n", host)
			}
		}
	}

	if _, ok := rep.Phase(report.PhaseDiscovery); ok {
		if unreachable := rep.Unreachable(); len(unreachable) > 0 {
			fmt.Fprintf(&buf, "%s\n", p.fail.Render("The following devices could not connect:"))
			for _, host := range unreachable {
				fmt.Fprintf(&buf, "  %s\n", host)
			}
		} else {
			fmt.Fprintf(&buf, "%s\n", p.ok.Render("All devices connected successfully."))
		}
	}
	if rep.Archive != "" {
		fmt.Fprintf(&buf, "Archive: %s\n", rep.Archive)
	}
	if rep.Interrupted {
		fmt.Fprintf(&buf, "%s\n", p.skip.Render("Collection window interrupted; capture sessions are still running."))
		fmt.Fprintf(&buf, "Run `fleetctl collect --date %s` and `fleetctl teardown` to finish.\n", rep.Date)
	}

	if rep.Summary.Discovered {
		fmt.Fprintf(&buf, "SUMMARY: %d online, %d offline, %d failures (%s)\n",
			rep.Summary.Online, rep.Summary.Offline, rep.Summary.Failures, formatDuration(rep.Summary.Duration))
	} else {
		fmt.Fprintf(&buf, "SUMMARY: %d targeted, %d failures (%s)\n",
			rep.Summary.Targeted, rep.Summary.Failures, formatDuration(rep.Summary.Duration))
	}

	_, err := buf.WriteTo(p.out)
	return err
}

// RenderList shows the enumerated fleet and the selected program set.
func (p *PrettyRenderer) RenderList(cfg config.Config, devices []fleet.Device) error {
	var buf bytes.Buffer
	set := "full"
	if cfg.Reduced {
		set = "reduced"
	}
	fmt.Fprintf(&buf, "%s %s\n", p.heading.Render("Fleet"), p.dim.Render(fmt.Sprintf("(%d devices)", len(devices))))
	for _, d := range devices {
		fmt.Fprintf(&buf, "  %3d  %s@%s\n", d.Ordinal, d.User, d.Hostname)
	}
	fmt.Fprintf(&buf, "%s %s\n", p.heading.Render("Programs"), p.dim.Render("("+set+" set)"))
	for _, prog := range cfg.ActivePrograms() {
		fmt.Fprintf(&buf, "  • %s  %s -> %s (%s)\n", prog.Name, prog.Local, prog.Remote, prog.Role)
	}
	_, err := buf.WriteTo(p.out)
	return err
}

func (p *PrettyRenderer) glyph(o report.Outcome) string {
	switch o {
	case report.Success:
		return p.ok.Render("✓")
	case report.Failure:
		return p.fail.Render("✗")
	case report.Skipped:
		return p.skip.Render("-")
	default:
		return "?"
	}
}

func title(ph report.Phase) string {
	if t, ok := phaseTitles[ph]; ok {
		return t
	}
	return string(ph)
}

func describe(res report.DeviceResult) string {
	detail := firstLine(res.Detail)
	if res.Kind == report.KindNone {
		return detail
	}
	if detail == "" {
		return string(res.Kind)
	}
	return string(res.Kind) + ": " + detail
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
