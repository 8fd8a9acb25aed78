// Package main implements the snipd daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the config file location.
	configPath string
	// version is set at build time via -ldflags.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "snipd",
	Short: "Entry-processing daemon",
	Long: `snipd captures short text snippets and turns them into structured
side effects: reminders, calendar events, contact records, and map
lookups. Entries arrive over HTTP or NATS, are processed through fact
extraction and a rule-based decision engine, and every action outcome
is durably recorded and observable.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: built-in defaults + SNIPD_* env)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the snipd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("snipd %s\n", version)
	},
}
