package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"remindbot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse and validate the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ParseFile(cfgPath)
		if err != nil {
			return err
		}
		r, err := config.Resolve(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %s\n", cfgPath)
		fmt.Fprintf(out, "  storage:   %s\n", r.Storage.Driver)
		fmt.Fprintf(out, "  timezone:  %s\n", r.Location)
		fmt.Fprintf(out, "  horizon:   %s (sweep every %s, catch-up grace %s)\n", r.Horizon, r.SweepInterval, r.CatchUpGrace)
		fmt.Fprintf(out, "  owners:    %d\n", len(r.Owners))
		if err := r.RequireToken(); err != nil {
			fmt.Fprintf(out, "  warning:   %v\n", err)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}
