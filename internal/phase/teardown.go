package phase

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/workpool"
)

// Teardown terminates the capture sessions this tool started.
type Teardown struct {
	Env
	// Programs are the sessions to terminate. Every configured program is
	// included so a reduced run still cleans up after a full one.
	Programs []config.Program
}

// Run stops the sessions on each device. Finding nothing to stop is not a
// failure.
func (p *Teardown) Run(ctx context.Context, devices []*fleet.Device) report.PhaseReport {
	started := p.now()
	perDevice := workpool.Map(ctx, p.concurrency(), devices, func(ctx context.Context, d *fleet.Device) []report.DeviceResult {
		return []report.DeviceResult{p.release(ctx, d)}
	})
	return p.finish(report.PhaseTeardown, perDevice, started)
}

func (p *Teardown) release(ctx context.Context, d *fleet.Device) report.DeviceResult {
	res := p.Exec.Execute(ctx, d.Endpoint(), p.Stop(d.Ordinal), p.Config.Timeouts.Command)
	// pkill exits 1 when no process matched.
	stopped := res.OK
	if !res.OK && res.ExitCode == 1 {
		res.OK = true
	}
	r := p.outcome(report.PhaseTeardown, d, "", res, report.KindCleanupFailed)
	switch {
	case r.Failed():
		if r.Detail == "" {
			r.Detail = "could not stop sessions"
		}
	case stopped:
		r.Detail = "sessions stopped"
		_, _ = p.Registry.Advance(d.Ordinal, fleet.StateReleased)
	default:
		r.Detail = "no sessions running"
		_, _ = p.Registry.Advance(d.Ordinal, fleet.StateReleased)
	}
	p.record(r)
	return r
}

// Stop builds the operation that terminates the sessions of device n. It
// matches only the detached screen daemons named after the programs.
func (p *Teardown) Stop(ordinal int) remote.Operation {
	return remote.Shell("pkill", "-f", SessionPattern(p.Programs, ordinal))
}

// SessionPattern is the extended regular expression matching the screen
// daemons of programs on device n.
func SessionPattern(programs []config.Program, ordinal int) string {
	names := make([]string, 0, len(programs))
	for _, prog := range programs {
		names = append(names, regexp.QuoteMeta(prog.Name))
	}
	return "^SCREEN -dmS (" + strings.Join(names, "|") + ")_" + strconv.Itoa(ordinal) + "( |$)"
}
