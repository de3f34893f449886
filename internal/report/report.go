package report

import (
	"time"

	"github.com/bgricker/fleetctl/internal/fleet"
)

// Phase names one ordered stage of a run.
type Phase string

const (
	PhaseDiscovery  Phase = "discovery"
	PhasePreflight  Phase = "preflight"
	PhaseProvision  Phase = "provisioning"
	PhaseActivation Phase = "activation"
	PhaseCollection Phase = "collection"
	PhaseTeardown   Phase = "teardown"
)

// Outcome is the result of a single device operation.
type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
	Skipped Outcome = "skipped"
)

// Kind classifies device failures.
type Kind string

const (
	KindNone           Kind = ""
	KindUnreachable    Kind = "unreachable"
	KindTransferFailed Kind = "transfer_failed"
	KindLaunchFailed   Kind = "launch_failed"
	KindCleanupFailed  Kind = "cleanup_failed"
	KindSelfTestFailed Kind = "selftest_failed"
)

// DeviceResult captures the outcome of one operation against one device.
type DeviceResult struct {
	Phase      Phase         `json:"phase"`
	Ordinal    int           `json:"ordinal"`
	Hostname   string        `json:"hostname"`
	Step       string        `json:"step,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Kind       Kind          `json:"kind,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Failed reports whether the result is a failure.
func (r DeviceResult) Failed() bool {
	return r.Outcome == Failure
}

// PhaseReport aggregates the results of one phase.
type PhaseReport struct {
	Phase      Phase          `json:"phase"`
	Results    []DeviceResult `json:"results"`
	Succeeded  []string       `json:"succeeded"`
	Failed     []string       `json:"failed"`
	Duration   time.Duration  `json:"-"`
	DurationMS int64          `json:"duration_ms"`
}

// NewPhaseReport builds a phase report from results given in fleet order. A
// device is listed as failed when any of its results failed and as
// succeeded when none did.
func NewPhaseReport(phase Phase, results []DeviceResult, duration time.Duration) PhaseReport {
	rep := PhaseReport{
		Phase:      phase,
		Results:    results,
		Succeeded:  []string{},
		Failed:     []string{},
		Duration:   duration,
		DurationMS: duration.Milliseconds(),
	}
	var order []string
	failed := make(map[string]bool)
	for _, res := range results {
		if _, seen := failed[res.Hostname]; !seen {
			order = append(order, res.Hostname)
			failed[res.Hostname] = false
		}
		if res.Failed() {
			failed[res.Hostname] = true
		}
	}
	for _, host := range order {
		if failed[host] {
			rep.Failed = append(rep.Failed, host)
		} else {
			rep.Succeeded = append(rep.Succeeded, host)
		}
	}
	return rep
}

// Count returns how many results have the given outcome.
func (p PhaseReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range p.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Exclusion lists devices removed from the run at a phase boundary.
type Exclusion struct {
	Phase Phase    `json:"phase"`
	Hosts []string `json:"hosts"`
}

// Summary aggregates run-level counts. Online and Offline are only counted
// when Discovery ran; Targeted counts the devices any phase acted on.
type Summary struct {
	Devices    int           `json:"devices"`
	Discovered bool          `json:"discovered"`
	Online     int           `json:"online"`
	Offline    int           `json:"offline"`
	Targeted   int           `json:"targeted"`
	Failures   int           `json:"failures"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Fleet is the report of one controller run.
type Fleet struct {
	RunID       string         `json:"run_id"`
	Command     string         `json:"command"`
	Date        string         `json:"date"`
	StartedAt   time.Time      `json:"started_at"`
	Reduced     bool           `json:"reduced"`
	Phases      []PhaseReport  `json:"phases"`
	Exclusions  []Exclusion    `json:"exclusions,omitempty"`
	Devices     []fleet.Device `json:"devices"`
	Archive     string         `json:"archive,omitempty"`
	Interrupted bool           `json:"interrupted,omitempty"`
	Summary     Summary        `json:"summary"`
	ExitCode    int            `json:"exit_code"`
}

// AddPhase appends a phase report.
func (f *Fleet) AddPhase(p PhaseReport) {
	f.Phases = append(f.Phases, p)
}

// Exclude records hosts excluded at phase. Empty lists are ignored.
func (f *Fleet) Exclude(phase Phase, hosts []string) {
	if len(hosts) == 0 {
		return
	}
	f.Exclusions = append(f.Exclusions, Exclusion{Phase: phase, Hosts: append([]string{}, hosts...)})
}

// Phase returns the report of the named phase.
func (f *Fleet) Phase(name Phase) (PhaseReport, bool) {
	for _, p := range f.Phases {
		if p.Phase == name {
			return p, true
		}
	}
	return PhaseReport{}, false
}

// Unreachable returns the hosts that could not connect at Discovery.
func (f *Fleet) Unreachable() []string {
	for _, ex := range f.Exclusions {
		if ex.Phase == PhaseDiscovery {
			return ex.Hosts
		}
	}
	return nil
}

// Finish fills the summary and device snapshot. The exit code is non-zero
// only when a device was unresponsive at Discovery.
func (f *Fleet) Finish(devices []fleet.Device, duration time.Duration) {
	f.Devices = devices
	f.Summary = Summary{
		Devices:    len(devices),
		Duration:   duration,
		DurationMS: duration.Milliseconds(),
	}
	if _, ok := f.Phase(PhaseDiscovery); ok {
		f.Summary.Discovered = true
		for _, d := range devices {
			if d.State == fleet.StateOffline {
				f.Summary.Offline++
			} else if d.State != fleet.StatePending {
				f.Summary.Online++
			}
		}
	}
	targeted := make(map[string]bool)
	for _, p := range f.Phases {
		f.Summary.Failures += p.Count(Failure)
		for _, r := range p.Results {
			targeted[r.Hostname] = true
		}
	}
	f.Summary.Targeted = len(targeted)
	f.ExitCode = 0
	if len(f.Unreachable()) > 0 {
		f.ExitCode = 1
	}
}
