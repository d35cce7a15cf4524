package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Load IANA zones even on hosts without tzdata.
	_ "time/tzdata"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "remindbot <command>",
	Short:         "Telegram reminder bot",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file (.json, .yaml, .toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
