package phase

import (
	"context"
	"strings"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/workpool"
)

// Preflight step names.
const (
	StepCamera   = "camera"
	StepSelfTest = "selftest"
)

// Preflight checks device hardware before capture starts. Failures are
// reported but never exclude a device.
type Preflight struct {
	Env
}

// Run checks for an attached camera when an imaging program is active and
// runs the sensor self-test when one is configured.
func (p *Preflight) Run(ctx context.Context, devices []*fleet.Device) report.PhaseReport {
	started := p.now()
	perDevice := workpool.Map(ctx, p.concurrency(), devices, func(ctx context.Context, d *fleet.Device) []report.DeviceResult {
		return p.check(ctx, d)
	})
	return p.finish(report.PhasePreflight, perDevice, started)
}

func (p *Preflight) check(ctx context.Context, d *fleet.Device) []report.DeviceResult {
	var results []report.DeviceResult

	if p.Config.HasRole(config.RoleImaging) && len(p.Config.Preflight.CameraKeywords) > 0 {
		res := p.Exec.Execute(ctx, d.Endpoint(), remote.Shell("lsusb"), p.Config.Timeouts.Command)
		if res.OK && !containsAny(res.Output, p.Config.Preflight.CameraKeywords) {
			res.OK = false
			res.Output = "no camera detected"
		}
		r := p.outcome(report.PhasePreflight, d, StepCamera, res, report.KindSelfTestFailed)
		p.record(r)
		results = append(results, r)
	}

	if len(p.Config.Preflight.SelfTest) > 0 {
		res := p.Exec.Execute(ctx, d.Endpoint(), remote.Shell(p.Config.Preflight.SelfTest...), p.Config.Timeouts.SelfTest)
		if res.OK && want(p.Config.Preflight.SelfTestOK) && !strings.Contains(res.Output, p.Config.Preflight.SelfTestOK) {
			res.OK = false
			res.Output = "unexpected self-test output: " + lastLine(res.Output)
		}
		r := p.outcome(report.PhasePreflight, d, StepSelfTest, res, report.KindSelfTestFailed)
		p.record(r)
		results = append(results, r)
	}

	if len(results) == 0 {
		r := report.DeviceResult{
			Phase:    report.PhasePreflight,
			Ordinal:  d.Ordinal,
			Hostname: d.Hostname,
			Outcome:  report.Skipped,
			Detail:   "no checks configured",
		}
		p.record(r)
		results = append(results, r)
	}
	return results
}

func want(s string) bool {
	return strings.TrimSpace(s) != ""
}

func containsAny(output string, keywords []string) bool {
	lower := strings.ToLower(output)
	for _, k := range keywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
