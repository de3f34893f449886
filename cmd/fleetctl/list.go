package main

import (
	"github.com/spf13/cobra"

	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/output"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the fleet and the programs that would be deployed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			renderer, err := output.New(cfg.Format, cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}
			return renderer.RenderList(cfg, fleet.NewRegistry(cfg.Fleet.Size, cfg.Naming()).Snapshot())
		},
	}
	reducedFlag(cmd)
	return cmd
}
