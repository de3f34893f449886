// Package controller sequences the phases of a fleet run and owns the
// unattended collection window.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bgricker/fleetctl/internal/artifact"
	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/filter"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/metrics"
	"github.com/bgricker/fleetctl/internal/phase"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/report"
	"github.com/bgricker/fleetctl/internal/toolcheck"
)

// ErrWindowInterrupted is returned when the collection window ends early.
// Capture sessions are left running on the devices.
var ErrWindowInterrupted = errors.New("collection window interrupted")

// Command names recorded in reports.
const (
	CommandRun       = "run"
	CommandRollCall  = "rollcall"
	CommandPreflight = "preflight"
	CommandCollect   = "collect"
	CommandTeardown  = "teardown"
)

// Deps are the collaborators injected into a Controller. Nil fields fall back
// to the system transports.
type Deps struct {
	Exec     remote.Executor
	Prober   remote.Prober
	Resolver remote.Resolver
	Log      zerolog.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
	// Output receives remote command output as it streams when the
	// configuration is verbose.
	Output io.Writer
	// Wait blocks for the collection window.
	Wait func(ctx context.Context, d time.Duration) error
	// Check verifies the controller host has the client binaries.
	Check func(ctx context.Context, tools []toolcheck.Tool) ([]toolcheck.Info, error)
	// RunID is assumed to be on Log already when set. Otherwise New
	// generates one and attaches it.
	RunID string
}

// Controller runs phases against one fleet.
type Controller struct {
	cfg      config.Config
	deps     Deps
	registry *fleet.Registry
	runID    string
}

// New validates cfg and enumerates the fleet.
func New(cfg config.Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Exec == nil {
		deps.Exec = remote.NewSSH(remote.Options{
			SSHBinary:  cfg.Remote.SSHBinary,
			SCPBinary:  cfg.Remote.SCPBinary,
			SSHOptions: cfg.Remote.SSHOptions,
			Stdout:     deps.Output,
			Verbose:    cfg.Verbose && deps.Output != nil,
		})
	}
	if deps.Prober == nil {
		deps.Prober = remote.Ping{}
	}
	if deps.Resolver == nil {
		deps.Resolver = remote.DNS{Timeout: cfg.Timeouts.Resolve}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Wait == nil {
		deps.Wait = Sleep
	}
	if deps.Check == nil {
		deps.Check = toolcheck.Check
	}

	runID := deps.RunID
	if runID == "" {
		runID = uuid.NewString()
		deps.Log = deps.Log.With().Str("run", runID).Logger()
	}
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		registry: fleet.NewRegistry(cfg.Fleet.Size, cfg.Naming()),
		runID:    runID,
	}, nil
}

// RunID identifies this controller invocation in logs, reports and metrics.
func (c *Controller) RunID() string {
	return c.runID
}

// Registry exposes the fleet.
func (c *Controller) Registry() *fleet.Registry {
	return c.registry
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the full sequence: Discovery, Provisioning, Activation, the
// collection window, Collection and Teardown. Devices that fail Discovery
// take part in no later phase. The returned report is valid even when an
// error is returned.
func (c *Controller) Run(ctx context.Context) (report.Fleet, error) {
	rep, started := c.begin(CommandRun)
	if err := c.checkTools(ctx, true, true); err != nil {
		return c.end(&rep, started), err
	}
	programs, err := c.programs()
	if err != nil {
		return c.end(&rep, started), err
	}
	if ok, _ := c.discover(ctx, &rep); !ok {
		return c.end(&rep, started), nil
	}

	env := c.env()

	prov := &phase.Provision{Env: env, Programs: programs}
	c.add(&rep, prov.Run(ctx, c.registry.Eligible()))

	act := &phase.Activate{Env: env, Programs: programs}
	c.add(&rep, act.Run(ctx, c.registry.Eligible()))

	c.deps.Log.Info().Dur("window", c.cfg.Window).
		Time("until", c.deps.Now().Add(c.cfg.Window)).
		Msg("capture running, waiting for the collection window to close")
	if err := c.deps.Wait(ctx, c.cfg.Window); err != nil {
		rep.Interrupted = true
		c.deps.Log.Warn().Err(err).
			Msg("collection window interrupted; capture sessions are still running, use fleetctl collect and fleetctl teardown")
		return c.end(&rep, started), fmt.Errorf("%w: %v", ErrWindowInterrupted, err)
	}

	if err := c.collect(ctx, &rep, "", c.registry.Eligible()); err != nil {
		c.deps.Log.Error().Err(err).Msg("collection skipped")
	}

	td := &phase.Teardown{Env: env, Programs: c.cfg.Programs}
	c.add(&rep, td.Run(ctx, c.registry.Eligible()))

	return c.end(&rep, started), nil
}

// RollCall runs Discovery alone and appends the ledger.
func (c *Controller) RollCall(ctx context.Context) (report.Fleet, error) {
	rep, started := c.begin(CommandRollCall)
	if err := c.checkTools(ctx, true, false); err != nil {
		return c.end(&rep, started), err
	}
	_, err := c.discover(ctx, &rep)
	return c.end(&rep, started), err
}

// Preflight runs Discovery followed by the hardware checks.
func (c *Controller) Preflight(ctx context.Context) (report.Fleet, error) {
	rep, started := c.begin(CommandPreflight)
	if err := c.checkTools(ctx, true, true); err != nil {
		return c.end(&rep, started), err
	}
	if ok, _ := c.discover(ctx, &rep); !ok {
		return c.end(&rep, started), nil
	}
	pf := &phase.Preflight{Env: c.env()}
	c.add(&rep, pf.Run(ctx, c.registry.Eligible()))
	return c.end(&rep, started), nil
}

// Collect fetches the artifacts of date from the targeted devices without a
// Discovery pass. An empty date selects today.
func (c *Controller) Collect(ctx context.Context, date string, targets []filter.Pattern) (report.Fleet, error) {
	rep, started := c.begin(CommandCollect)
	if date != "" {
		if _, err := time.Parse(phase.DateLayout, date); err != nil {
			return c.end(&rep, started), fmt.Errorf("%w: date %q is not YYYY-MM-DD", config.ErrInvalid, date)
		}
	}
	if err := c.checkTools(ctx, false, true); err != nil {
		return c.end(&rep, started), err
	}
	devices, err := c.targets(targets)
	if err != nil {
		return c.end(&rep, started), err
	}
	if err := c.collect(ctx, &rep, date, devices); err != nil {
		return c.end(&rep, started), err
	}
	return c.end(&rep, started), nil
}

// Teardown stops capture sessions on the targeted devices without a
// Discovery pass.
func (c *Controller) Teardown(ctx context.Context, targets []filter.Pattern) (report.Fleet, error) {
	rep, started := c.begin(CommandTeardown)
	if err := c.checkTools(ctx, false, true); err != nil {
		return c.end(&rep, started), err
	}
	devices, err := c.targets(targets)
	if err != nil {
		return c.end(&rep, started), err
	}
	td := &phase.Teardown{Env: c.env(), Programs: c.cfg.Programs}
	c.add(&rep, td.Run(ctx, devices))
	return c.end(&rep, started), nil
}

func (c *Controller) targets(patterns []filter.Pattern) ([]*fleet.Device, error) {
	devices := filter.Devices(c.registry.Devices(), patterns)
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no device matches %v", fleet.ErrUnknownDevice, patterns)
	}
	return devices, nil
}

func (c *Controller) env() phase.Env {
	return phase.Env{
		Config:   c.cfg,
		Registry: c.registry,
		Exec:     c.deps.Exec,
		Log:      c.deps.Log,
		Now:      c.deps.Now,
	}
}

func (c *Controller) begin(command string) (report.Fleet, time.Time) {
	started := c.deps.Now()
	c.deps.Log.Info().Str("command", command).Int("devices", c.registry.Len()).
		Bool("reduced", c.cfg.Reduced).Int("concurrency", c.cfg.Concurrency).
		Msg("starting " + command)
	return report.Fleet{
		RunID:     c.runID,
		Command:   command,
		Date:      started.Format(phase.DateLayout),
		StartedAt: started,
		Reduced:   c.cfg.Reduced,
	}, started
}

func (c *Controller) end(rep *report.Fleet, started time.Time) report.Fleet {
	rep.Finish(c.registry.Snapshot(), c.deps.Now().Sub(started))
	c.deps.Metrics.ObserveFleet(*rep)
	if path := c.cfg.Metrics.Textfile; path != "" {
		if err := c.deps.Metrics.WriteTextfile(path); err != nil {
			c.deps.Log.Warn().Err(err).Str("path", path).Msg("could not write metrics textfile")
		}
	}
	c.deps.Log.Info().Str("command", rep.Command).
		Int("online", rep.Summary.Online).
		Int("offline", rep.Summary.Offline).
		Int("targeted", rep.Summary.Targeted).
		Int("failures", rep.Summary.Failures).
		Int("exit_code", rep.ExitCode).
		Msg(rep.Command + " finished")
	return *rep
}

func (c *Controller) add(rep *report.Fleet, p report.PhaseReport) {
	rep.AddPhase(p)
	c.deps.Metrics.ObservePhase(p)
}

// discover runs Discovery over the whole fleet and reports whether any device
// is left to work on. The error reports a ledger write failure, which the
// full run tolerates.
func (c *Controller) discover(ctx context.Context, rep *report.Fleet) (bool, error) {
	d := &phase.Discovery{
		Env:      c.env(),
		Prober:   c.deps.Prober,
		Resolver: c.deps.Resolver,
		Ledger:   c.cfg.Paths.Ledger,
	}
	p, err := d.Run(ctx, c.registry.Devices())
	c.add(rep, p)
	rep.Exclude(report.PhaseDiscovery, p.Failed)

	if len(p.Failed) > 0 {
		c.deps.Log.Warn().Strs("hosts", p.Failed).Msg("the following devices could not connect")
	} else {
		c.deps.Log.Info().Msg("all devices connected")
	}
	if len(c.registry.Eligible()) == 0 {
		c.deps.Log.Error().Msg("no device responded; nothing to do")
		return false, err
	}
	return true, err
}

func (c *Controller) collect(ctx context.Context, rep *report.Fleet, date string, devices []*fleet.Device) error {
	col := &phase.Collect{Env: c.env(), Date: date, Archive: c.cfg.Collection.Archive}
	out, err := col.Run(ctx, devices)
	if err != nil {
		return err
	}
	c.add(rep, out.Report)
	rep.Date = filepath.Base(out.Dir)
	rep.Archive = out.Archive
	return nil
}

// checkTools verifies the local client binaries: ping and dig for probing,
// ssh and scp for the transports. dig is optional.
func (c *Controller) checkTools(ctx context.Context, probe, transport bool) error {
	var tools []toolcheck.Tool
	if probe {
		tools = append(tools,
			toolcheck.Tool{Name: "ping", Binary: remote.DefaultPingBinary, Required: true},
			toolcheck.Tool{Name: "dig", Binary: remote.DefaultDigBinary},
		)
	}
	if transport {
		tools = append(tools,
			toolcheck.Tool{Name: "ssh", Binary: c.cfg.Remote.SSHBinary, VersionArgs: []string{"-V"}, Required: true},
			toolcheck.Tool{Name: "scp", Binary: c.cfg.Remote.SCPBinary, Required: true},
		)
	}
	infos, err := c.deps.Check(ctx, tools)
	for _, info := range infos {
		c.deps.Log.Debug().Str("tool", info.Name).Bool("found", info.Found).
			Str("path", info.Path).Str("version", info.Version).Msg("tool check")
	}
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("controller host is missing client tools")
		return fmt.Errorf("check tools: %w", err)
	}
	return nil
}

// programs returns the active programs with their local files resolved
// against the working directory.
func (c *Controller) programs() ([]config.Program, error) {
	programs := c.cfg.ActivePrograms()
	locals := make([]string, len(programs))
	for i, p := range programs {
		locals[i] = p.Local
	}
	resolved, err := artifact.Resolve(".", locals)
	if err != nil {
		c.deps.Log.Error().Err(err).Msg("local program files are not deployable")
		return nil, fmt.Errorf("resolve programs: %w", err)
	}
	for i := range programs {
		programs[i].Local = resolved[i]
	}
	return programs, nil
}
