package phase

import (
	"context"
	"fmt"
	"path"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/workpool"
)

// Activate starts every capture program in its own detached session.
type Activate struct {
	Env
	Programs []config.Program
}

// Run launches programs on each device. A device with at least one running
// session becomes active; launch failures are reported and the device stays
// eligible for Collection.
func (p *Activate) Run(ctx context.Context, devices []*fleet.Device) report.PhaseReport {
	started := p.now()
	perDevice := workpool.Map(ctx, p.concurrency(), devices, func(ctx context.Context, d *fleet.Device) []report.DeviceResult {
		return p.activate(ctx, d)
	})
	return p.finish(report.PhaseActivation, perDevice, started)
}

func (p *Activate) activate(ctx context.Context, d *fleet.Device) []report.DeviceResult {
	results := make([]report.DeviceResult, 0, len(p.Programs))
	started := 0
	for _, prog := range p.Programs {
		res := p.Exec.Execute(ctx, d.Endpoint(), p.Launch(prog, d.Ordinal), p.Config.Timeouts.Command)
		r := p.outcome(report.PhaseActivation, d, prog.Name, res, report.KindLaunchFailed)
		if r.Failed() && r.Detail == "" {
			r.Detail = fmt.Sprintf("could not start session %s", SessionName(prog, d.Ordinal))
		}
		if !r.Failed() {
			started++
			r.Detail = "session " + SessionName(prog, d.Ordinal)
		}
		p.record(r)
		results = append(results, r)
	}
	if started > 0 {
		_, _ = p.Registry.Advance(d.Ordinal, fleet.StateActive)
	}
	return results
}

// SessionName is the detached session a program runs in on device n.
func SessionName(prog config.Program, ordinal int) string {
	return fmt.Sprintf("%s_%d", prog.Name, ordinal)
}

// Launch builds the operation that starts prog in a detached screen session.
// Program output goes to <log_dir>/<name>.log relative to the home directory.
func (p *Activate) Launch(prog config.Program, ordinal int) remote.Operation {
	logDir := p.Config.Remote.LogDir
	inner := fmt.Sprintf("mkdir -p %s; %s %s > %s 2>&1",
		remote.Quote(logDir),
		remote.Quote(p.Config.Remote.Python),
		remote.Quote(prog.Remote),
		remote.Quote(path.Join(logDir, prog.Name+".log")),
	)
	return remote.Shell("screen", "-dmS", SessionName(prog, ordinal), "bash", "-c", inner)
}
