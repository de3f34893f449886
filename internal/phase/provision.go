package phase

import (
	"context"
	"fmt"
	"strings"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/workpool"
)

// Existence probe answers.
const (
	presentMarker = "Exists"
	missingMarker = "Missing"
)

// Provision pushes capture programs that are not yet present on a device.
type Provision struct {
	Env
	Programs []config.Program
}

// Run provisions each device. A device whose pushes all succeed or were not
// needed becomes provisioned; a failed push is reported but the device stays
// eligible for Activation.
func (p *Provision) Run(ctx context.Context, devices []*fleet.Device) report.PhaseReport {
	started := p.now()
	perDevice := workpool.Map(ctx, p.concurrency(), devices, func(ctx context.Context, d *fleet.Device) []report.DeviceResult {
		return p.provision(ctx, d)
	})
	return p.finish(report.PhaseProvision, perDevice, started)
}

func (p *Provision) provision(ctx context.Context, d *fleet.Device) []report.DeviceResult {
	results := make([]report.DeviceResult, 0, len(p.Programs))
	ok := true
	for _, prog := range p.Programs {
		r := p.program(ctx, d, prog)
		p.record(r)
		if r.Failed() {
			ok = false
		}
		results = append(results, r)
	}
	if ok {
		_, _ = p.Registry.Advance(d.Ordinal, fleet.StateProvisioned)
	}
	return results
}

func (p *Provision) program(ctx context.Context, d *fleet.Device, prog config.Program) report.DeviceResult {
	target := p.remotePath(d, prog.Remote)

	probe := p.Exec.Execute(ctx, d.Endpoint(), ExistenceProbe(target), p.Config.Timeouts.Command)
	if Present(probe) {
		r := p.outcome(report.PhaseProvision, d, prog.Name, probe, report.KindNone)
		r.Outcome = report.Skipped
		r.Detail = "already present"
		return r
	}
	if !probe.OK {
		p.Log.Debug().Str("host", d.Hostname).Str("step", prog.Name).
			Str("output", strings.TrimSpace(probe.Output)).
			Msg("existence probe failed, treating program as missing")
	}

	push := p.Exec.Execute(ctx, d.Endpoint(), remote.Push(prog.Local, target), p.Config.Timeouts.Transfer)
	r := p.outcome(report.PhaseProvision, d, prog.Name, push, report.KindTransferFailed)
	r.Duration += probe.Duration
	r.DurationMS = r.Duration.Milliseconds()
	if r.Failed() && r.Detail == "" {
		r.Detail = fmt.Sprintf("failed to push %s", prog.Local)
	}
	if !r.Failed() {
		r.Detail = "pushed " + target
	}
	return r
}

// ExistenceProbe builds the remote check that prints whether file exists.
func ExistenceProbe(file string) remote.Operation {
	return remote.Script(fmt.Sprintf("test -f %s && echo %s || echo %s", remote.Quote(file), presentMarker, missingMarker))
}

// Present reports whether an existence probe confirmed the file. A failed
// probe counts as missing.
func Present(res remote.Result) bool {
	return res.OK && lastLine(res.Output) == presentMarker
}
