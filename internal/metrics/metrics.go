// Package metrics records run outcomes in a Prometheus registry and flushes
// them to a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/report"
)

// Recorder owns the collectors of one run.
type Recorder struct {
	reg           *prometheus.Registry
	devices       *prometheus.GaugeVec
	results       *prometheus.CounterVec
	phaseDuration *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	exitCode      prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetctl_devices",
			Help: "Devices by lifecycle state at the end of the run.",
		}, []string{"state"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetctl_phase_results_total",
			Help: "Device operation results by phase, outcome and failure kind.",
		}, []string{"phase", "outcome", "kind"}),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetctl_phase_duration_seconds",
			Help: "Wall time spent in each phase.",
		}, []string{"phase"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetctl_last_run_timestamp_seconds",
			Help: "Unix time the run started.",
		}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetctl_last_run_exit_code",
			Help: "Exit code of the last run.",
		}),
	}
	r.reg.MustRegister(r.devices, r.results, r.phaseDuration, r.lastRun, r.exitCode)
	return r
}

// ObservePhase counts the results of a finished phase.
func (r *Recorder) ObservePhase(p report.PhaseReport) {
	for _, res := range p.Results {
		r.results.WithLabelValues(string(p.Phase), string(res.Outcome), string(res.Kind)).Inc()
	}
	r.phaseDuration.WithLabelValues(string(p.Phase)).Set(p.Duration.Seconds())
}

// ObserveFleet records the final device states and run metadata.
func (r *Recorder) ObserveFleet(f report.Fleet) {
	counts := make(map[fleet.State]int)
	for _, d := range f.Devices {
		counts[d.State]++
	}
	for s := fleet.StatePending; s <= fleet.StateOffline; s++ {
		r.devices.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
	if !f.StartedAt.IsZero() {
		r.lastRun.Set(float64(f.StartedAt.Unix()))
	}
	r.exitCode.Set(float64(f.ExitCode))
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
