package phase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bgricker/fleetctl/internal/archive"
	"github.com/bgricker/fleetctl/internal/artifact"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/workpool"
)

// DateLayout names the per-day collection directory and file prefix.
const DateLayout = "2006-01-02"

// Collect fetches the artifacts a device produced on Date into
// <data_dir>/<Date> on the controller.
type Collect struct {
	Env
	Date string
	// Archive bundles the collection directory into <dir>.tar.zst.
	Archive bool
}

// Collection is the outcome of a collection pass.
type Collection struct {
	Report  report.PhaseReport
	Dir     string
	Files   []string
	Archive string
}

// Run fetches artifacts from every device. The returned error is set only
// when the local collection directory cannot be prepared, in which case no
// device is contacted.
func (p *Collect) Run(ctx context.Context, devices []*fleet.Device) (Collection, error) {
	started := p.now()
	date := p.Date
	if date == "" {
		date = started.Format(DateLayout)
	}
	out := Collection{Dir: filepath.Join(p.Config.Paths.DataDir, date)}
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return out, fmt.Errorf("create collection directory: %w", err)
	}

	perDevice := workpool.Map(ctx, p.concurrency(), devices, func(ctx context.Context, d *fleet.Device) []report.DeviceResult {
		return []report.DeviceResult{p.fetch(ctx, d, date, out.Dir)}
	})
	out.Report = p.finish(report.PhaseCollection, perDevice, started)

	prefix := fmt.Sprintf(p.Config.Collection.Pattern, date)
	files, err := artifact.List(out.Dir, prefix)
	if err != nil {
		p.Log.Warn().Err(err).Str("dir", out.Dir).Msg("could not list collected files")
	}
	out.Files = files
	p.Log.Info().Str("dir", out.Dir).Int("files", len(files)).Msg("collection directory ready")

	if p.Archive && len(files) > 0 {
		path := out.Dir + ".tar.zst"
		n, err := archive.Directory(out.Dir, path)
		if err != nil {
			p.Log.Error().Err(err).Str("archive", path).Msg("could not archive collection")
			return out, nil
		}
		out.Archive = path
		p.Log.Info().Str("archive", path).Int("files", n).Msg("collection archived")
	}
	return out, nil
}

func (p *Collect) fetch(ctx context.Context, d *fleet.Device, date, dir string) report.DeviceResult {
	pattern := p.remotePath(d, p.Config.Remote.DataDir, fmt.Sprintf(p.Config.Collection.Pattern, date))
	res := p.Exec.Execute(ctx, d.Endpoint(), remote.Pull(pattern, dir), p.Config.Timeouts.Transfer)
	r := p.outcome(report.PhaseCollection, d, "", res, report.KindTransferFailed)
	if r.Failed() {
		if r.Detail == "" {
			r.Detail = "failed fetch"
		} else {
			r.Detail = "failed fetch: " + lastLine(r.Detail)
		}
	} else {
		_, _ = p.Registry.Advance(d.Ordinal, fleet.StateCollected)
		r.Detail = "fetched " + pattern
	}
	p.record(r)
	return r
}
