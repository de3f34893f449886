package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/fleetctl/internal/controller"
	"github.com/bgricker/fleetctl/internal/filter"
	"github.com/bgricker/fleetctl/internal/report"
)

func newCollectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch the artifacts of one day from the devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := cmd.Flags().GetString("date")
			if err != nil {
				return fmt.Errorf("parse --date: %w", err)
			}
			targets, err := devicePatterns(cmd)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			return a.execute(cmd, controller.CommandCollect, func(ctx context.Context, c *controller.Controller) (report.Fleet, error) {
				return c.Collect(ctx, date, targets)
			})
		},
	}
	cmd.Flags().String("date", "", "artifact date as YYYY-MM-DD (default today)")
	cmd.Flags().Bool("archive", false, "bundle the collected directory into a .tar.zst")
	deviceFlag(cmd)
	return cmd
}

func newTeardownCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Stop the capture sessions started by fleetctl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := devicePatterns(cmd)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			return a.execute(cmd, controller.CommandTeardown, func(ctx context.Context, c *controller.Controller) (report.Fleet, error) {
				return c.Teardown(ctx, targets)
			})
		},
	}
	deviceFlag(cmd)
	return cmd
}

func devicePatterns(cmd *cobra.Command) ([]filter.Pattern, error) {
	raw, err := cmd.Flags().GetStringArray("device")
	if err != nil {
		return nil, fmt.Errorf("parse --device: %w", err)
	}
	return filter.Compile(raw)
}
