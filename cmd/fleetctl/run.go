package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bgricker/fleetctl/internal/controller"
	"github.com/bgricker/fleetctl/internal/logging"
	"github.com/bgricker/fleetctl/internal/output"
	"github.com/bgricker/fleetctl/internal/report"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, provision, start capture, wait for the window, then collect and clean up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, controller.CommandRun, func(ctx context.Context, c *controller.Controller) (report.Fleet, error) {
				return c.Run(ctx)
			})
		},
	}
	reducedFlag(cmd)
	flags := cmd.Flags()
	flags.Duration("window", 0, "how long capture runs before collection (default 12h)")
	flags.Bool("archive", false, "bundle the collected directory into a .tar.zst")
	return cmd
}

// execute loads configuration, opens the run log, runs fn against a new
// controller and renders its report.
func (a *app) execute(cmd *cobra.Command, name string, fn func(context.Context, *controller.Controller) (report.Fleet, error)) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	renderer, err := output.New(cfg.Format, cmd.OutOrStdout())
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	console := a.console
	if console == nil {
		console = cmd.ErrOrStderr()
	}
	runID := uuid.NewString()
	runLog, err := logging.Open(logging.Options{
		Dir:     cfg.Paths.LogDir,
		Name:    name,
		Console: console,
		Verbose: cfg.Verbose,
		Fields:  map[string]string{"run": runID},
	})
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	defer runLog.Close()
	runLog.Logger.Debug().Str("path", runLog.Path).Msg("run log opened")

	deps := a.deps
	deps.Log = runLog.Logger
	deps.RunID = runID
	if deps.Output == nil {
		deps.Output = console
	}
	ctrl, err := controller.New(cfg, deps)
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	rep, runErr := fn(cmd.Context(), ctrl)
	if len(rep.Phases) > 0 || rep.Interrupted {
		if err := renderer.RenderFleet(rep); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
	}

	switch {
	case errors.Is(runErr, controller.ErrWindowInterrupted):
		return &exitError{code: exitInterrupted, err: runErr}
	case runErr != nil:
		return &exitError{code: exitUsage, err: runErr}
	case rep.ExitCode != exitOK:
		return &exitError{code: rep.ExitCode, err: fmt.Errorf("%d device(s) could not connect", len(rep.Unreachable()))}
	}
	return nil
}

// deviceFlag registers the repeatable --device selector.
func deviceFlag(cmd *cobra.Command) {
	cmd.Flags().StringArray("device", nil, "device filter: ordinal, substring or /regexp/ (repeatable)")
}

// reducedFlag registers --ir-only on commands that depend on the program set.
func reducedFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("ir-only", false, "only consider the sensor program")
}
