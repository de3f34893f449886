package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bgricker/fleetctl/internal/controller"
	"github.com/bgricker/fleetctl/internal/report"
)

func newRollCallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollcall",
		Short: "Probe every device and append the results to the connection ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, controller.CommandRollCall, func(ctx context.Context, c *controller.Controller) (report.Fleet, error) {
				return c.RollCall(ctx)
			})
		},
	}
}

func newPreflightCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Probe every device and check its camera and sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, controller.CommandPreflight, func(ctx context.Context, c *controller.Controller) (report.Fleet, error) {
				return c.Preflight(ctx)
			})
		},
	}
	reducedFlag(cmd)
	return cmd
}
