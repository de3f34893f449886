// Package phase implements the per-device stages of a fleet run. Every runner
// fans out over the bounded worker pool, keeps a device's own operations
// strictly sequential, and joins the per-device results in fleet order before
// returning.
package phase

import (
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
)

// Env bundles what every phase runner needs.
type Env struct {
	Config   config.Config
	Registry *fleet.Registry
	Exec     remote.Executor
	Log      zerolog.Logger
	Now      func() time.Time
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e Env) concurrency() int {
	if e.Config.Concurrency < 1 {
		return 1
	}
	return e.Config.Concurrency
}

// remotePath joins elements under the device user's home directory.
func (e Env) remotePath(d *fleet.Device, elem ...string) string {
	return path.Join(append([]string{e.Config.RemoteHome(d.User)}, elem...)...)
}

// outcome converts an executor result into a device result and records
// failures on the device.
func (e Env) outcome(phase report.Phase, d *fleet.Device, step string, res remote.Result, kind report.Kind) report.DeviceResult {
	out := report.DeviceResult{
		Phase:      phase,
		Ordinal:    d.Ordinal,
		Hostname:   d.Hostname,
		Step:       step,
		Outcome:    report.Success,
		Duration:   res.Duration,
		DurationMS: res.Duration.Milliseconds(),
	}
	if !res.OK {
		out.Outcome = report.Failure
		out.Kind = kind
		out.Detail = strings.TrimSpace(res.Output)
	}
	return out
}

// record logs a device result and accumulates failures in the registry.
func (e Env) record(r report.DeviceResult) {
	event := e.Log.Info()
	if r.Failed() {
		event = e.Log.Error()
		_ = e.Registry.RecordFailure(r.Ordinal, fleet.Failure{Phase: string(r.Phase), Kind: string(r.Kind), Detail: r.Detail})
	}
	event = event.Str("phase", string(r.Phase)).Str("host", r.Hostname).Str("outcome", string(r.Outcome))
	if r.Step != "" {
		event = event.Str("step", r.Step)
	}
	if r.Kind != report.KindNone {
		event = event.Str("kind", string(r.Kind))
	}
	if r.Detail != "" {
		event = event.Str("detail", r.Detail)
	}
	event.Msg(describe(r))
}

func describe(r report.DeviceResult) string {
	subject := r.Hostname
	if r.Step != "" {
		subject = r.Step + " on " + r.Hostname
	}
	switch r.Outcome {
	case report.Success:
		return string(r.Phase) + " succeeded for " + subject
	case report.Skipped:
		return string(r.Phase) + " skipped for " + subject
	default:
		return string(r.Phase) + " failed for " + subject
	}
}

// finish flattens per-device results, builds the phase report and logs the
// phase summary.
func (e Env) finish(phase report.Phase, perDevice [][]report.DeviceResult, started time.Time) report.PhaseReport {
	var flat []report.DeviceResult
	for _, rs := range perDevice {
		flat = append(flat, rs...)
	}
	rep := report.NewPhaseReport(phase, flat, e.now().Sub(started))

	event := e.Log.Info()
	if len(rep.Failed) > 0 {
		event = e.Log.Warn().Strs("failed", rep.Failed)
	}
	event.Str("phase", string(phase)).
		Int("succeeded", len(rep.Succeeded)).
		Int("failures", len(rep.Failed)).
		Dur("duration", rep.Duration).
		Msg(string(phase) + " complete")
	return rep
}
