package phase

import (
	"context"
	"fmt"
	"strings"

	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/ledger"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/workpool"
)

// Ledger status values.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
)

// Discovery probes every device, resolves the address of the responsive ones
// and appends one ledger row per device.
type Discovery struct {
	Env
	Prober   remote.Prober
	Resolver remote.Resolver
	// Ledger is the CSV file to append to. Empty disables the ledger.
	Ledger string
}

type probeResult struct {
	online bool
	addr   string
	result report.DeviceResult
}

// Run probes devices. Unresponsive devices are marked offline and excluded
// from every later phase. The returned error reports a ledger write failure;
// the phase report is valid either way.
func (p *Discovery) Run(ctx context.Context, devices []*fleet.Device) (report.PhaseReport, error) {
	started := p.now()
	at := started

	probes := workpool.Map(ctx, p.concurrency(), devices, func(ctx context.Context, d *fleet.Device) probeResult {
		return p.probe(ctx, d)
	})

	entries := make([]ledger.Entry, 0, len(devices))
	perDevice := make([][]report.DeviceResult, 0, len(devices))
	for i, d := range devices {
		pr := probes[i]
		entry := ledger.Entry{At: at, Hostname: d.Hostname, Status: StatusOffline}
		if pr.online {
			entry.Status = StatusOnline
			entry.Address = pr.addr
		}
		entries = append(entries, entry)
		perDevice = append(perDevice, []report.DeviceResult{pr.result})
	}

	rep := p.finish(report.PhaseDiscovery, perDevice, started)
	if p.Ledger == "" {
		return rep, nil
	}
	if err := ledger.Append(p.Ledger, entries); err != nil {
		p.Log.Error().Err(err).Str("ledger", p.Ledger).Msg("could not write roll-call ledger")
		return rep, fmt.Errorf("write ledger: %w", err)
	}
	p.Log.Debug().Str("ledger", p.Ledger).Int("rows", len(entries)).Msg("roll-call ledger updated")
	return rep, nil
}

func (p *Discovery) probe(ctx context.Context, d *fleet.Device) probeResult {
	start := p.now()
	online, output := p.Prober.Probe(ctx, d.Hostname, p.Config.Timeouts.Probe)

	res := report.DeviceResult{
		Phase:    report.PhaseDiscovery,
		Ordinal:  d.Ordinal,
		Hostname: d.Hostname,
		Outcome:  report.Success,
	}
	out := probeResult{online: online}
	if online {
		out.addr = remote.UnknownAddress
		if p.Resolver != nil {
			out.addr = p.Resolver.Resolve(ctx, d.Hostname)
		}
		_ = p.Registry.SetAddress(d.Ordinal, out.addr)
		_, _ = p.Registry.Advance(d.Ordinal, fleet.StateOnline)
		res.Detail = out.addr
	} else {
		_, _ = p.Registry.MarkOffline(d.Ordinal)
		res.Outcome = report.Failure
		res.Kind = report.KindUnreachable
		res.Detail = lastLine(output)
	}
	res.Duration = p.now().Sub(start)
	res.DurationMS = res.Duration.Milliseconds()
	p.record(res)
	out.result = res
	return out
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
