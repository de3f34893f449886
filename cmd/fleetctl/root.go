package main

import (
	"io"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/bgricker/fleetctl/internal/controller"
)

// app holds the collaborators shared by every command. Zero values select the
// process environment and the system transports.
type app struct {
	deps    controller.Deps
	lookup  envconfig.Lookuper
	console io.Writer
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{})
}

func newRootCmdWith(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "fleetctl deploys, runs and collects capture programs across a sensor fleet",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("config", "", "configuration file (default ./fleetctl.yml)")
	persistent.String("format", "pretty", "output format (pretty|json)")
	persistent.BoolP("verbose", "v", false, "log debug events and stream remote output")
	persistent.Int("size", 0, "number of devices in the fleet")
	persistent.Int("concurrency", 0, "maximum simultaneous remote operations")
	persistent.String("data-dir", "", "local base directory for collected artifacts")
	persistent.String("metrics-textfile", "", "write Prometheus metrics to this file after the run")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newRollCallCmd(a))
	cmd.AddCommand(newPreflightCmd(a))
	cmd.AddCommand(newCollectCmd(a))
	cmd.AddCommand(newTeardownCmd(a))
	cmd.AddCommand(newListCmd(a))

	return cmd
}
